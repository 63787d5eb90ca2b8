package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"mindsync-backend/internal/middleware"
	"mindsync-backend/internal/models"
	"mindsync-backend/internal/services"
)

const (
	FallbackReply       = "I'm sorry, I couldn't generate a response."
	ProviderErrorPrefix = "AI Error: "
)

type chatRelay interface {
	Relay(ctx context.Context, req models.ChatRequest) (services.Result, error)
}

type ChatHandler struct {
	relay        chatRelay
	maxBodyBytes int64
	logger       *zap.Logger
}

func NewChatHandler(relay chatRelay, maxBodyBytes int64, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		relay:        relay,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Chat relays one {message, history} request to the provider.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req models.ChatRequest
	if err := decodeBody(body, &req); err != nil {
		h.logger.Warn("invalid chat request body",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}

	result, err := h.relay.Relay(r.Context(), req)
	outcome := NewOutcome(result, err)
	if outcome.Status >= http.StatusInternalServerError {
		h.logger.Error("chat request failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
	}

	writeJSON(w, outcome.Status, outcome.Body())
}

// decodeBody reads exactly one JSON value; anything after it is an error.
func decodeBody(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// Outcome is what the client sees for one relay call, independent of transport.
type Outcome struct {
	Status   int
	Response string
	Degraded bool
	Error    string
}

// NewOutcome applies the reply policy: provider-side failures stay 200 with
// conversational text, only validation and transport failures are errors.
func NewOutcome(result services.Result, err error) Outcome {
	if err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			return Outcome{Status: http.StatusBadRequest, Error: validationErr.Message()}
		}
		return Outcome{Status: http.StatusInternalServerError, Error: err.Error()}
	}

	switch result.Kind {
	case services.ResultSuccess:
		return Outcome{Status: http.StatusOK, Response: result.Text}
	case services.ResultProviderError:
		return Outcome{Status: http.StatusOK, Response: ProviderErrorPrefix + result.Text, Degraded: true}
	default:
		return Outcome{Status: http.StatusOK, Response: FallbackReply, Degraded: true}
	}
}

// Body is the JSON body for the outcome's status.
func (o Outcome) Body() interface{} {
	if o.Status >= http.StatusBadRequest {
		return models.ErrorResponse{Error: o.Error}
	}
	return models.ChatResponse{Response: o.Response, Degraded: o.Degraded}
}
