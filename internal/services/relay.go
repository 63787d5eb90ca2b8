package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"mindsync-backend/internal/models"
)

const UnknownProviderError = "Unknown error occurred"

type ResultKind int

const (
	// ResultSuccess carries generated text.
	ResultSuccess ResultKind = iota
	// ResultProviderError carries the provider's error message.
	ResultProviderError
	// ResultUnrecognized means the provider answered with neither text nor an error.
	ResultUnrecognized
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultProviderError:
		return "provider_error"
	case ResultUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Result is the normalized outcome of a provider call that reached the provider.
type Result struct {
	Kind ResultKind
	Text string
}

// ChatRelay turns a client chat request into one provider call.
// It holds no per-request state and is safe for concurrent use.
type ChatRelay struct {
	generator Generator
	timeout   time.Duration
	logger    *zap.Logger
}

func NewChatRelay(generator Generator, timeout time.Duration, logger *zap.Logger) *ChatRelay {
	return &ChatRelay{
		generator: generator,
		timeout:   timeout,
		logger:    logger,
	}
}

// Relay validates the request, translates it and calls the provider once.
// Errors are *ValidationError or *TransportError.
func (r *ChatRelay) Relay(ctx context.Context, req models.ChatRequest) (Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Result{}, &ValidationError{Fields: map[string]string{"message": "message is required"}}
	}

	contents := BuildContents(req.Message, req.History)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := r.generator.Generate(ctx, NewGenerateContentRequest(contents))
	elapsed := time.Since(start)

	if err != nil {
		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			err = &TransportError{Op: "call provider", Err: err}
		}
		r.logger.Warn("chat relay failed",
			zap.Int("turns", len(contents)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return Result{}, err
	}

	fields := []zap.Field{
		zap.Int("turns", len(contents)),
		zap.Duration("elapsed", elapsed),
		zap.Stringer("outcome", result.Kind),
	}
	if result.Kind == ResultProviderError {
		r.logger.Warn("provider returned an error", append(fields, zap.String("provider_message", result.Text))...)
	} else {
		r.logger.Info("chat relayed", fields...)
	}

	return result, nil
}
