package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/footprint-prints/footprint/internal/model"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.5-flash-image"

	// geminiUSDPerMillion is the output price of image tokens.
	geminiUSDPerMillion = 30.0
)

// GeminiConfig configures the nano-banana client.
type GeminiConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Gemini is the nano-banana provider, backed by generateContent.
type Gemini struct {
	hc      *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewGemini constructs the client, filling defaults for empty fields.
func NewGemini(cfg GeminiConfig) *Gemini {
	g := &Gemini{hc: cfg.HTTPClient, baseURL: cfg.BaseURL, apiKey: cfg.APIKey, model: cfg.Model}
	if g.hc == nil {
		g.hc = DefaultHTTPClient()
	}
	if g.baseURL == "" {
		g.baseURL = DefaultGeminiBaseURL
	}
	if g.model == "" {
		g.model = DefaultGeminiModel
	}
	g.baseURL = strings.TrimRight(g.baseURL, "/")
	return g
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Transform sends the photo, the prompt and any reference images in one request.
func (g *Gemini) Transform(ctx context.Context, r Request) (*Result, error) {
	src, err := Fetch(ctx, g.hc, r.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("source image: %w", err)
	}

	parts := []geminiPart{
		{Text: r.Prompt},
		{InlineData: &geminiBlob{MimeType: src.MimeType, Data: base64.StdEncoding.EncodeToString(src.Data)}},
	}
	if len(r.References) > 0 {
		parts = append(parts, geminiPart{Text: "Match the look of the following reference images."})
		for _, ref := range r.References {
			parts = append(parts, geminiPart{InlineData: &geminiBlob{
				MimeType: ref.MimeType,
				Data:     base64.StdEncoding.EncodeToString(ref.Data),
			}})
		}
	}

	var body geminiRequest
	body.Contents = []geminiContent{{Parts: parts}}
	body.GenerationConfig.ResponseModalities = []string{"IMAGE", "TEXT"}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, readError(resp))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", err)
	}

	for _, c := range out.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			tokens := out.UsageMetadata.TotalTokenCount
			cost := float64(tokens) * geminiUSDPerMillion / 1e6
			return &Result{
				ImageBase64:   p.InlineData.Data,
				MimeType:      p.InlineData.MimeType,
				TokensUsed:    &tokens,
				EstimatedCost: &cost,
				Provider:      model.ProviderNanoBanana,
			}, nil
		}
	}
	return nil, errors.New("gemini returned no image")
}
