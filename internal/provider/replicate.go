package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/footprint-prints/footprint/internal/model"
)

const (
	DefaultReplicateBaseURL = "https://api.replicate.com"
	DefaultReplicateModel   = "black-forest-labs/flux-kontext-pro"
	DefaultReplicateCost    = 0.04
	DefaultPollInterval     = 2 * time.Second
	DefaultMaxPolls         = 60
)

var errPredictionPending = errors.New("prediction still running")

// ReplicateConfig configures the Replicate client.
type ReplicateConfig struct {
	BaseURL      string
	Token        string
	Model        string
	CostPerRun   float64
	PollInterval time.Duration
	MaxPolls     uint64
	HTTPClient   *http.Client
}

// Replicate runs an image-to-image model through the predictions API.
type Replicate struct {
	hc       *http.Client
	baseURL  string
	token    string
	model    string
	cost     float64
	poll     time.Duration
	maxPolls uint64
}

// NewReplicate constructs the client, filling defaults for zero fields.
func NewReplicate(cfg ReplicateConfig) *Replicate {
	r := &Replicate{
		hc:       cfg.HTTPClient,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		model:    cfg.Model,
		cost:     cfg.CostPerRun,
		poll:     cfg.PollInterval,
		maxPolls: cfg.MaxPolls,
	}
	if r.hc == nil {
		r.hc = DefaultHTTPClient()
	}
	if r.baseURL == "" {
		r.baseURL = DefaultReplicateBaseURL
	}
	if r.model == "" {
		r.model = DefaultReplicateModel
	}
	if r.cost <= 0 {
		r.cost = DefaultReplicateCost
	}
	if r.poll <= 0 {
		r.poll = DefaultPollInterval
	}
	if r.maxPolls == 0 {
		r.maxPolls = DefaultMaxPolls
	}
	return r
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p *prediction) terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// Transform creates a prediction, waits for it and returns the output URL.
func (r *Replicate) Transform(ctx context.Context, in Request) (*Result, error) {
	payload, err := json.Marshal(map[string]any{
		"input": map[string]any{
			"input_image":   in.ImageURL,
			"prompt":        in.Prompt,
			"output_format": "png",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal replicate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s/predictions", r.baseURL, r.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create replicate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")

	p, err := r.do(req)
	if err != nil {
		return nil, err
	}

	if !p.terminal() {
		if p.URLs.Get == "" {
			return nil, fmt.Errorf("replicate prediction %s has no poll url", p.ID)
		}
		b := retry.WithMaxRetries(r.maxPolls, retry.NewConstant(r.poll))
		err = retry.Do(ctx, b, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URLs.Get, nil)
			if err != nil {
				return err
			}
			next, err := r.do(req)
			if err != nil {
				return err
			}
			p = next
			if !p.terminal() {
				return retry.RetryableError(errPredictionPending)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("replicate prediction %s: %w", p.ID, err)
		}
	}

	if p.Status != "succeeded" {
		return nil, fmt.Errorf("replicate prediction %s %s: %v", p.ID, p.Status, p.Error)
	}
	out, err := outputURL(p.Output)
	if err != nil {
		return nil, err
	}
	cost := r.cost
	return &Result{ImageURL: out, EstimatedCost: &cost, Provider: model.ProviderReplicate}, nil
}

func (r *Replicate) do(req *http.Request) (*prediction, error) {
	req.Header.Set("Authorization", "Bearer "+r.token)
	resp, err := r.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call replicate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("replicate returned status %d: %s", resp.StatusCode, readError(resp))
	}
	var p prediction
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode replicate response: %w", err)
	}
	return &p, nil
}

// outputURL accepts both a single URL and a list of URLs.
func outputURL(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0], nil
	}
	return "", errors.New("replicate returned no output")
}
