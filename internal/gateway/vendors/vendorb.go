package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	vendorBName  = "vendorB"
	vendorBModel = "gemini-2.5-flash"
)

// VendorB is the Google Gemini-backed adapter. It speaks the Gemini wire
// format directly over HTTP.
type VendorB struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Gemini wire types.

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// VendorBRaw is VendorB's raw response shape, as returned by the Gemini API.
type VendorBRaw struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
	LatencyMs     int               `json:"-"`
}

// NewVendorB creates the Gemini adapter.
func NewVendorB(apiKey string) *VendorB {
	return &VendorB{
		apiKey:  apiKey,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Name returns the vendor identifier.
func (v *VendorB) Name() string {
	return vendorBName
}

// Send calls the Gemini generateContent API.
func (v *VendorB) Send(ctx context.Context, req Request) (RawResponse, error) {
	startTime := time.Now()

	// Gemini has no system role; prepend the system prompt to the user turn.
	prompt := fmt.Sprintf("%s\n\nUser: %s", req.SystemPrompt, req.UserMessage)

	geminiReq := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     0.7,
			MaxOutputTokens: 500,
		},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", v.baseURL, vendorBModel, v.apiKey)

	reqBody, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, fmt.Errorf("vendorB: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("vendorB: failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return nil, Classify(vendorBName, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(vendorBName, 0, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, v.mapStatus(resp, body)
	}

	var raw VendorBRaw
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewUpstream(vendorBName, 502, fmt.Errorf("failed to parse response: %w", err))
	}
	raw.LatencyMs = int(time.Since(startTime).Milliseconds())

	return &raw, nil
}

// Normalize maps VendorB's raw shape into a Result.
func (v *VendorB) Normalize(raw RawResponse) (*Result, error) {
	r, ok := raw.(*VendorBRaw)
	if !ok {
		return nil, fmt.Errorf("vendorB: unexpected raw response type %T", raw)
	}

	var text string
	if len(r.Candidates) > 0 {
		for _, part := range r.Candidates[0].Content.Parts {
			text += part.Text
		}
	}

	return &Result{
		Text:      text,
		TokensIn:  r.UsageMetadata.PromptTokenCount,
		TokensOut: r.UsageMetadata.CandidatesTokenCount,
		LatencyMs: r.LatencyMs,
	}, nil
}

// mapStatus translates a non-200 Gemini response into the shared taxonomy.
func (v *VendorB) mapStatus(resp *http.Response, body []byte) *Error {
	err := fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(body))

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := defaultRetryAfter
		if header := resp.Header.Get("Retry-After"); header != "" {
			if secs, parseErr := strconv.Atoi(header); parseErr == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return NewRateLimited(vendorBName, retryAfter, err)
	}

	return NewUpstream(vendorBName, resp.StatusCode, err)
}
