package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bricklore/brickengine/internal/catalog"
)

// BrickOwlAdapter fetches set records from the BrickOwl catalog API.
type BrickOwlAdapter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limit      int
}

// BrickOwlConfig holds BrickOwl adapter configuration.
type BrickOwlConfig struct {
	BaseURL string
	APIKey  string
	Limit   int
	Timeout time.Duration
}

// NewBrickOwlAdapter creates a BrickOwl adapter.
func NewBrickOwlAdapter(cfg BrickOwlConfig) (*BrickOwlAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("brickowl API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.brickowl.com/v1"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 500
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &BrickOwlAdapter{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		limit:      cfg.Limit,
	}, nil
}

// Name returns the source name.
func (a *BrickOwlAdapter) Name() string { return "brickowl" }

// Fetch retrieves catalog entries of type Set.
func (a *BrickOwlAdapter) Fetch(ctx context.Context) ([]catalog.RawRecord, error) {
	params := url.Values{}
	params.Set("key", a.apiKey)
	params.Set("type", "Set")
	params.Set("limit", strconv.Itoa(a.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/catalog/list?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brickowl API: status %d", resp.StatusCode)
	}

	var payload struct {
		Results []map[string]interface{} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	records := make([]catalog.RawRecord, 0, len(payload.Results))
	for _, fields := range payload.Results {
		records = append(records, catalog.RawRecord{Source: a.Name(), Fields: fields})
	}
	return records, nil
}
