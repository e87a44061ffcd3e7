package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bricklore/brickengine/internal/catalog"
)

// BricksetAdapter fetches set records from the Brickset API. Brickset
// requires a login handshake that exchanges credentials for a user hash
// before any data call.
type BricksetAdapter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	username   string
	password   string
	pageSize   int
}

// BricksetConfig holds Brickset adapter configuration.
type BricksetConfig struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
	PageSize int
	Timeout  time.Duration
}

// NewBricksetAdapter creates a Brickset adapter.
func NewBricksetAdapter(cfg BricksetConfig) (*BricksetAdapter, error) {
	if cfg.APIKey == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("brickset API key, username and password are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://brickset.com/api/v3.asmx"
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 500 {
		cfg.PageSize = 200
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &BricksetAdapter{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		username:   cfg.Username,
		password:   cfg.Password,
		pageSize:   cfg.PageSize,
	}, nil
}

// Name returns the source name.
func (a *BricksetAdapter) Name() string { return "brickset" }

// Fetch logs in and retrieves the most recent sets.
func (a *BricksetAdapter) Fetch(ctx context.Context) ([]catalog.RawRecord, error) {
	userHash, err := a.login(ctx)
	if err != nil {
		return nil, err
	}

	query, err := json.Marshal(map[string]interface{}{
		"orderBy":  "YearFromDESC",
		"pageSize": a.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query params: %w", err)
	}

	params := url.Values{}
	params.Set("apiKey", a.apiKey)
	params.Set("userHash", userHash)
	params.Set("params", string(query))

	body, err := a.get(ctx, "/getSets", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Status  string                   `json:"status"`
		Message string                   `json:"message"`
		Sets    []map[string]interface{} `json:"sets"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal sets response: %w", err)
	}
	if payload.Status != "success" {
		return nil, fmt.Errorf("brickset getSets: %s", payload.Message)
	}

	records := make([]catalog.RawRecord, 0, len(payload.Sets))
	for _, fields := range payload.Sets {
		records = append(records, catalog.RawRecord{Source: a.Name(), Fields: fields})
	}
	return records, nil
}

// login exchanges the configured credentials for a session user hash.
func (a *BricksetAdapter) login(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Set("apiKey", a.apiKey)
	params.Set("username", a.username)
	params.Set("password", a.password)

	body, err := a.get(ctx, "/login", params)
	if err != nil {
		return "", err
	}

	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Hash    string `json:"hash"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("unmarshal login response: %w", err)
	}
	if payload.Status != "success" {
		return "", fmt.Errorf("brickset login: %s", payload.Message)
	}
	return payload.Hash, nil
}

func (a *BricksetAdapter) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path+"?"+params.Encode(), nil)
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
		return nil, fmt.Errorf("brickset API: status %d", resp.StatusCode)
	}
	return body, nil
}
