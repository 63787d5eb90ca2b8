package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

var sdkHarmCategories = map[string]genai.HarmCategory{
	"HARM_CATEGORY_HARASSMENT":        genai.HarmCategoryHarassment,
	"HARM_CATEGORY_HATE_SPEECH":       genai.HarmCategoryHateSpeech,
	"HARM_CATEGORY_SEXUALLY_EXPLICIT": genai.HarmCategorySexuallyExplicit,
	"HARM_CATEGORY_DANGEROUS_CONTENT": genai.HarmCategoryDangerousContent,
}

var sdkThresholds = map[string]genai.HarmBlockThreshold{
	"BLOCK_LOW_AND_ABOVE":    genai.HarmBlockLowAndAbove,
	"BLOCK_MEDIUM_AND_ABOVE": genai.HarmBlockMediumAndAbove,
	"BLOCK_ONLY_HIGH":        genai.HarmBlockOnlyHigh,
	"BLOCK_NONE":             genai.HarmBlockNone,
}

// SDKGenerator sends chat turns through the generative-ai-go client.
type SDKGenerator struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

func NewSDKGenerator(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*SDKGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &SDKGenerator{
		client:    client,
		modelName: modelName,
		logger:    logger,
	}, nil
}

func (g *SDKGenerator) Close() error {
	return g.client.Close()
}

// model is built per call; GenerativeModel is mutable and not shared across requests.
func (g *SDKGenerator) model(req *GenerateContentRequest) *genai.GenerativeModel {
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(float32(req.GenerationConfig.Temperature))
	model.SetTopK(int32(req.GenerationConfig.TopK))
	model.SetTopP(float32(req.GenerationConfig.TopP))
	model.SetMaxOutputTokens(int32(req.GenerationConfig.MaxOutputTokens))

	for _, s := range req.SafetySettings {
		category, ok := sdkHarmCategories[s.Category]
		if !ok {
			continue
		}
		threshold, ok := sdkThresholds[s.Threshold]
		if !ok {
			threshold = genai.HarmBlockMediumAndAbove
		}
		model.SafetySettings = append(model.SafetySettings, &genai.SafetySetting{
			Category:  category,
			Threshold: threshold,
		})
	}
	return model
}

func (g *SDKGenerator) Generate(ctx context.Context, req *GenerateContentRequest) (Result, error) {
	if len(req.Contents) == 0 {
		return Result{}, &TransportError{Op: "build provider request", Err: errors.New("no turns to send")}
	}

	session := g.model(req).StartChat()
	history := req.Contents[:len(req.Contents)-1]
	session.History = make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		session.History = append(session.History, &genai.Content{
			Role:  turn.Role,
			Parts: sdkParts(turn.Parts),
		})
	}

	last := req.Contents[len(req.Contents)-1]
	resp, err := session.SendMessage(ctx, sdkParts(last.Parts)...)
	if err != nil {
		return g.classify(ctx, err)
	}

	for _, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			g.logger.Warn("provider stopped early", zap.String("finish_reason", cand.FinishReason.String()))
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok && text != "" {
				return Result{Kind: ResultSuccess, Text: string(text)}, nil
			}
		}
		break
	}
	return Result{Kind: ResultUnrecognized}, nil
}

// classify splits SDK errors the same way ExtractResult splits REST bodies.
func (g *SDKGenerator) classify(ctx context.Context, err error) (Result, error) {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Result{}, &TransportError{Op: "call provider", Err: err}
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		g.logger.Warn("provider blocked content", zap.Error(err))
		return Result{Kind: ResultUnrecognized}, nil
	}

	var httpErr *googleapi.Error
	if errors.As(err, &httpErr) {
		msg := httpErr.Message
		if msg == "" {
			msg = UnknownProviderError
		}
		return Result{Kind: ResultProviderError, Text: msg}, nil
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if st := apiErr.GRPCStatus(); st != nil {
			switch st.Code() {
			case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
				return Result{}, &TransportError{Op: "call provider", Err: err}
			}
			if st.Message() != "" {
				return Result{Kind: ResultProviderError, Text: st.Message()}, nil
			}
		}
		return Result{Kind: ResultProviderError, Text: UnknownProviderError}, nil
	}

	return Result{}, &TransportError{Op: "call provider", Err: err}
}

func sdkParts(parts []Part) []genai.Part {
	out := make([]genai.Part, len(parts))
	for i, p := range parts {
		out[i] = genai.Text(p.Text)
	}
	return out
}
