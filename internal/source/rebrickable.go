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

// RebrickableAdapter fetches set records from the Rebrickable catalog API.
type RebrickableAdapter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
}

// RebrickableConfig holds Rebrickable adapter configuration.
type RebrickableConfig struct {
	BaseURL  string
	APIKey   string
	PageSize int
	Timeout  time.Duration
}

// NewRebrickableAdapter creates a Rebrickable adapter.
func NewRebrickableAdapter(cfg RebrickableConfig) (*RebrickableAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("rebrickable API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://rebrickable.com/api/v3"
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 1000 {
		cfg.PageSize = 500
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RebrickableAdapter{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		pageSize:   cfg.PageSize,
	}, nil
}

// Name returns the source name.
func (a *RebrickableAdapter) Name() string { return "rebrickable" }

// Fetch retrieves one page of sets ordered by newest set number.
func (a *RebrickableAdapter) Fetch(ctx context.Context) ([]catalog.RawRecord, error) {
	params := url.Values{}
	params.Set("key", a.apiKey)
	params.Set("page_size", strconv.Itoa(a.pageSize))
	params.Set("ordering", "-set_num")

	endpoint := a.baseURL + "/lego/sets/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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
		return nil, fmt.Errorf("rebrickable API: status %d", resp.StatusCode)
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
