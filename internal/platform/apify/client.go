package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/companysync-backend/internal/observability"
	"github.com/yungbote/companysync-backend/internal/pkg/httpx"
	"github.com/yungbote/companysync-backend/internal/platform/envutil"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

// Run is the subset of an actor run the ingestion flow reads.
type Run struct {
	ID               string `json:"id"`
	ActID            string `json:"actId"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// Terminal reports whether the run has stopped producing items.
func (r Run) Terminal() bool {
	switch strings.ToUpper(r.Status) {
	case "SUCCEEDED", "FAILED", "ABORTED", "TIMED-OUT":
		return true
	}
	return false
}

// MonitorURL is the console link stored next to a launched run.
func (r Run) MonitorURL() string {
	return fmt.Sprintf("https://console.apify.com/actors/%s/runs/%s", r.ActID, r.ID)
}

// StartURL is one input URL with the userData echoed back on every dataset item.
type StartURL struct {
	URL      string         `json:"url"`
	UserData map[string]any `json:"userData,omitempty"`
}

type Client interface {
	StartActor(ctx context.Context, actorID string, input map[string]any) (Run, error)
	GetRun(ctx context.Context, runID string) (Run, error)
	// IterateDataset pages through a dataset and calls fn once per item until fn returns an error.
	IterateDataset(ctx context.Context, datasetID string, fn func(item map[string]any) error) error
}

type Config struct {
	Token      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	PageSize   int
}

func ConfigFromEnv() Config {
	return Config{
		Token:      envutil.String("APIFY_TOKEN", ""),
		BaseURL:    envutil.String("APIFY_BASE_URL", "https://api.apify.com"),
		Timeout:    envutil.Seconds("APIFY_TIMEOUT_SECONDS", 60*time.Second),
		MaxRetries: envutil.Int("APIFY_MAX_RETRIES", 3),
		PageSize:   envutil.Int("APIFY_PAGE_SIZE", 1000),
	}
}

type client struct {
	log        *logger.Logger
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	pageSize   int
}

func NewClient(log *logger.Logger) (Client, error) {
	return NewClientWithConfig(log, ConfigFromEnv(), nil)
}

func NewClientWithConfig(log *logger.Logger, cfg Config, httpClient *http.Client) (Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("missing APIFY_TOKEN")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.apify.com"
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &client{
		log:        log.With("client", "ApifyClient"),
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: httpClient,
		maxRetries: maxRetries,
		pageSize:   pageSize,
	}, nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpx.StatusError{Service: "apify", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, endpoint, method, path string, body any) ([]byte, error) {
	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			observability.Current().IncApifyRequest(endpoint, strconv.Itoa(resp.StatusCode))
			return raw, nil
		}
		status := "error"
		if resp != nil {
			status = strconv.Itoa(resp.StatusCode)
		}
		observability.Current().IncApifyRequest(endpoint, status)
		if ctx.Err() != nil || !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return nil, err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 30*time.Second))
		c.log.Warn("Apify request retrying", "endpoint", endpoint, "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("unreachable retry loop")
}

type runEnvelope struct {
	Data Run `json:"data"`
}

// actorPath turns "user/actor" into the "user~actor" form the REST API expects.
func actorPath(actorID string) string {
	return url.PathEscape(strings.ReplaceAll(strings.TrimSpace(actorID), "/", "~"))
}

func (c *client) StartActor(ctx context.Context, actorID string, input map[string]any) (Run, error) {
	if strings.TrimSpace(actorID) == "" {
		return Run{}, fmt.Errorf("actor id required")
	}
	raw, err := c.do(ctx, "start_actor", http.MethodPost, "/v2/acts/"+actorPath(actorID)+"/runs", input)
	if err != nil {
		return Run{}, fmt.Errorf("start actor %s: %w", actorID, err)
	}
	var env runEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Run{}, fmt.Errorf("decode run: %w", err)
	}
	if env.Data.ID == "" {
		return Run{}, fmt.Errorf("start actor %s: response without run id", actorID)
	}
	if env.Data.ActID == "" {
		env.Data.ActID = actorPath(actorID)
	}
	return env.Data, nil
}

func (c *client) GetRun(ctx context.Context, runID string) (Run, error) {
	if strings.TrimSpace(runID) == "" {
		return Run{}, fmt.Errorf("run id required")
	}
	raw, err := c.do(ctx, "get_run", http.MethodGet, "/v2/actor-runs/"+url.PathEscape(runID), nil)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	var env runEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Run{}, fmt.Errorf("decode run: %w", err)
	}
	return env.Data, nil
}

func (c *client) IterateDataset(ctx context.Context, datasetID string, fn func(item map[string]any) error) error {
	if strings.TrimSpace(datasetID) == "" {
		return fmt.Errorf("dataset id required")
	}
	offset := 0
	for {
		q := url.Values{}
		q.Set("format", "json")
		q.Set("clean", "true")
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(c.pageSize))
		raw, err := c.do(ctx, "dataset_items", http.MethodGet, "/v2/datasets/"+url.PathEscape(datasetID)+"/items?"+q.Encode(), nil)
		if err != nil {
			return fmt.Errorf("dataset %s offset %d: %w", datasetID, offset, err)
		}
		var items []map[string]any
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("decode dataset page: %w", err)
		}
		for _, it := range items {
			if err := fn(it); err != nil {
				return err
			}
		}
		if len(items) < c.pageSize {
			return nil
		}
		offset += len(items)
	}
}
