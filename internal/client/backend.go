package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sentinel-monitor/internal/model"

	"github.com/klauspost/compress/gzhttp"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultHistoryLimit = 100

	maxBodySize = 10 << 20
)

// TokenSource supplies the bearer credential. An empty token sends no header.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed bearer credential
type StaticToken string

func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

type BackendOption func(*BackendClient)

func WithHTTPClient(hc *http.Client) BackendOption {
	return func(c *BackendClient) { c.http = hc }
}

// WithTimeout bounds every request, including reading the body
func WithTimeout(d time.Duration) BackendOption {
	return func(c *BackendClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithTokenSource(ts TokenSource) BackendOption {
	return func(c *BackendClient) { c.tokens = ts }
}

func WithHistoryLimit(limit int) BackendOption {
	return func(c *BackendClient) {
		if limit > 0 {
			c.historyLimit = limit
		}
	}
}

// BackendClient talks to the monitoring backend REST API
type BackendClient struct {
	baseURL      *url.URL
	http         *http.Client
	tokens       TokenSource
	historyLimit int
	logger       *logrus.Logger
}

// NewBackendClient creates a client for the API rooted at baseURL (e.g. http://host:5000/api)
func NewBackendClient(baseURL string, logger *logrus.Logger, opts ...BackendOption) (*BackendClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}

	c := &BackendClient{
		baseURL: u,
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: gzhttp.Transport(http.DefaultTransport),
		},
		tokens:       StaticToken(""),
		historyLimit: DefaultHistoryLimit,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *BackendClient) Stats(ctx context.Context) (model.Stats, error) {
	var stats model.Stats
	if err := c.do(ctx, http.MethodGet, "stats", nil, nil, &stats); err != nil {
		return model.Stats{}, err
	}
	stats.Sanitize()
	return stats, nil
}

// History fetches the configured number of recent entries
func (c *BackendClient) History(ctx context.Context) ([]model.HistoryEntry, error) {
	return c.HistoryN(ctx, c.historyLimit)
}

// HistoryN fetches up to limit entries. Entries that fail to decode are skipped.
func (c *BackendClient) HistoryN(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "history", query, nil, &raw); err != nil {
		return nil, err
	}

	entries := make([]model.HistoryEntry, 0, len(raw))
	for i, item := range raw {
		var entry model.HistoryEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			c.logger.Debugf("[Backend] Skipping malformed history entry %d: %v", i, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *BackendClient) ProcessTree(ctx context.Context) ([]model.ProcessNode, error) {
	var resp model.ProcessTreeResponse
	if err := c.do(ctx, http.MethodGet, "process-tree", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Processes == nil {
		resp.Processes = []model.ProcessNode{}
	}
	return resp.Processes, nil
}

func (c *BackendClient) AnalyzeThreat(ctx context.Context, event model.HistoryEntry) (model.Analysis, error) {
	body := map[string]any{"event": event}

	var resp model.AnalysisResponse
	if err := c.do(ctx, http.MethodPost, "analyze-threat", nil, body, &resp); err != nil {
		return model.Analysis{}, err
	}
	if resp.Analysis == nil {
		if resp.Error != "" {
			return model.Analysis{}, &StatusError{StatusCode: http.StatusOK, Message: resp.Error}
		}
		return model.Analysis{}, &DecodeError{Op: "analyze-threat", Err: errors.New("no analysis in response")}
	}
	return *resp.Analysis, nil
}

func (c *BackendClient) SendAlert(ctx context.Context, event model.HistoryEntry, channels []string) (model.DispatchResponse, error) {
	body := model.AlertRequest{Event: event, Channels: channels}

	var resp model.DispatchResponse
	if err := c.do(ctx, http.MethodPost, "alerts/send", nil, body, &resp); err != nil {
		return model.DispatchResponse{}, err
	}
	if resp.Error != "" && len(resp.Results) == 0 {
		return resp, &StatusError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	return resp, nil
}

// AlertHistory fetches dispatch records. Records that fail to decode are skipped.
func (c *BackendClient) AlertHistory(ctx context.Context) ([]model.AlertRecord, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "alerts/history", nil, nil, &raw); err != nil {
		return nil, err
	}

	records := make([]model.AlertRecord, 0, len(raw))
	for i, item := range raw {
		var rec model.AlertRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			c.logger.Debugf("[Backend] Skipping malformed alert record %d: %v", i, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *BackendClient) Analytics(ctx context.Context, period string) (model.Analytics, error) {
	if !model.ValidPeriod(period) {
		return model.Analytics{}, fmt.Errorf("unknown analytics period %q", period)
	}

	var resp model.Analytics
	query := url.Values{"period": []string{period}}
	if err := c.do(ctx, http.MethodGet, "analytics", query, nil, &resp); err != nil {
		return model.Analytics{}, err
	}
	return resp, nil
}

func (c *BackendClient) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *BackendClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token()
	if err != nil {
		return &AuthError{Message: fmt.Sprintf("no credential available: %v", err)}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	c.logger.Debugf("[Backend] %s %s -> %d (%v)", method, path, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Op: method + " " + path, Err: err}
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a body, falling back to the trimmed text
func errorMessage(data []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 512 {
		text = text[:512]
	}
	return text
}
