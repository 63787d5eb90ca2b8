package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindsync-backend/internal/models"
)

type stubGenerator struct {
	result Result
	err    error
	wait   bool
	calls  int
	got    *GenerateContentRequest
}

func (s *stubGenerator) Generate(ctx context.Context, req *GenerateContentRequest) (Result, error) {
	s.calls++
	s.got = req
	if s.wait {
		<-ctx.Done()
		return Result{}, &TransportError{Op: "call provider", Err: ctx.Err()}
	}
	return s.result, s.err
}

func TestChatRelay_RejectsEmptyMessage(t *testing.T) {
	for _, msg := range []string{"", "   ", "\n\t"} {
		gen := &stubGenerator{}
		relay := NewChatRelay(gen, time.Second, zap.NewNop())

		_, err := relay.Relay(context.Background(), models.ChatRequest{Message: msg})

		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "message is required", validationErr.Message())
		assert.Zero(t, gen.calls, "provider must not be called for %q", msg)
	}
}

func TestChatRelay_TranslatesHistory(t *testing.T) {
	gen := &stubGenerator{result: Result{Kind: ResultSuccess, Text: "Good, thanks"}}
	relay := NewChatRelay(gen, time.Second, zap.NewNop())

	result, err := relay.Relay(context.Background(), models.ChatRequest{
		Message: "How are you",
		History: []models.ChatMessage{
			{Role: "assistant", Content: "Hi"},
			{Role: "user", Content: "Hello"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, Result{Kind: ResultSuccess, Text: "Good, thanks"}, result)
	require.Len(t, gen.got.Contents, 3)
	assert.Equal(t, "model", gen.got.Contents[0].Role)
	assert.Equal(t, "user", gen.got.Contents[1].Role)
	assert.Equal(t, "user", gen.got.Contents[2].Role)
	assert.Equal(t, "How are you", gen.got.Contents[2].Parts[0].Text)
	assert.Equal(t, chatGenerationConfig, gen.got.GenerationConfig)
}

func TestChatRelay_PassesProviderErrorThrough(t *testing.T) {
	gen := &stubGenerator{result: Result{Kind: ResultProviderError, Text: "quota exceeded"}}
	relay := NewChatRelay(gen, time.Second, zap.NewNop())

	result, err := relay.Relay(context.Background(), models.ChatRequest{Message: "hi"})

	require.NoError(t, err)
	assert.Equal(t, ResultProviderError, result.Kind)
	assert.Equal(t, "quota exceeded", result.Text)
}

func TestChatRelay_WrapsForeignErrors(t *testing.T) {
	gen := &stubGenerator{err: errors.New("socket closed")}
	relay := NewChatRelay(gen, time.Second, zap.NewNop())

	_, err := relay.Relay(context.Background(), models.ChatRequest{Message: "hi"})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Contains(t, err.Error(), "socket closed")
}

func TestChatRelay_TimeoutBoundsProviderCall(t *testing.T) {
	gen := &stubGenerator{wait: true}
	relay := NewChatRelay(gen, 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	_, err := relay.Relay(context.Background(), models.ChatRequest{Message: "hi"})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestChatRelay_EndToEndAgainstFakeProvider(t *testing.T) {
	provider := &fakeProvider{
		status: http.StatusOK,
		body:   `{"candidates":[{"content":{"parts":[{"text":"Tell me more."}]}}]}`,
	}
	srv := provider.server(t)

	relay := NewChatRelay(NewGeminiClient(srv.URL, "k", nil, zap.NewNop()), time.Second, zap.NewNop())
	result, err := relay.Relay(context.Background(), models.ChatRequest{Message: "I feel anxious", History: []models.ChatMessage{}})

	require.NoError(t, err)
	assert.Equal(t, Result{Kind: ResultSuccess, Text: "Tell me more."}, result)
	require.Len(t, provider.gotBody.Contents, 1)
	assert.Equal(t, Content{Role: "user", Parts: []Part{{Text: "I feel anxious"}}}, provider.gotBody.Contents[0])
}

func TestResultKind_String(t *testing.T) {
	assert.Equal(t, "success", ResultSuccess.String())
	assert.Equal(t, "provider_error", ResultProviderError.String())
	assert.Equal(t, "unrecognized", ResultUnrecognized.String())
	assert.Equal(t, "unknown", ResultKind(42).String())
}
