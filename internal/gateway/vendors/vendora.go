package vendors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	vendorAName  = "vendorA"
	vendorAModel = "gpt-4o-mini"

	// Applied when a 429 arrives without a usable Retry-After.
	defaultRetryAfter = 1 * time.Second
)

// VendorA is the OpenAI-backed adapter.
type VendorA struct {
	client *openai.Client
}

// VendorARaw is VendorA's raw response shape.
type VendorARaw struct {
	OutputText string
	TokensIn   int
	TokensOut  int
	LatencyMs  int
}

// NewVendorA creates the OpenAI adapter.
func NewVendorA(apiKey string) *VendorA {
	return &VendorA{client: openai.NewClient(apiKey)}
}

// Name returns the vendor identifier.
func (v *VendorA) Name() string {
	return vendorAName
}

// Send calls the OpenAI chat completions API.
func (v *VendorA) Send(ctx context.Context, req Request) (RawResponse, error) {
	startTime := time.Now()

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: vendorAModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserMessage},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, v.mapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewUpstream(vendorAName, 502, fmt.Errorf("empty choices in response"))
	}

	return &VendorARaw{
		OutputText: resp.Choices[0].Message.Content,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		LatencyMs:  int(time.Since(startTime).Milliseconds()),
	}, nil
}

// Normalize maps VendorA's raw shape into a Result.
func (v *VendorA) Normalize(raw RawResponse) (*Result, error) {
	r, ok := raw.(*VendorARaw)
	if !ok {
		return nil, fmt.Errorf("vendorA: unexpected raw response type %T", raw)
	}
	return &Result{
		Text:      r.OutputText,
		TokensIn:  r.TokensIn,
		TokensOut: r.TokensOut,
		LatencyMs: r.LatencyMs,
	}, nil
}

// mapError translates go-openai errors into the shared taxonomy.
func (v *VendorA) mapError(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return NewRateLimited(vendorAName, defaultRetryAfter, err)
		case apiErr.HTTPStatusCode >= 500:
			return NewUpstream(vendorAName, apiErr.HTTPStatusCode, err)
		default:
			return NewUpstream(vendorAName, apiErr.HTTPStatusCode, err)
		}
	}
	return Classify(vendorAName, 0, err)
}
