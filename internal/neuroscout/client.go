package neuroscout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kiranshivaraju/nsstatus/pkg/models"
)

// Sentinel errors for Neuroscout client failures.
var (
	ErrUpstreamUnreachable = errors.New("neuroscout unreachable")
	ErrUpstreamStatus      = errors.New("neuroscout request failed")
	ErrUpstreamTimeout     = errors.New("neuroscout request timeout")
	ErrNotFound            = errors.New("analysis not found")
)

// Client is the interface for the parts of the Neuroscout API the status
// page reads from and writes to.
type Client interface {
	Analysis(ctx context.Context, id string) (*models.Analysis, error)
	CompileTraceback(ctx context.Context, id string) (string, error)
	Uploads(ctx context.Context, id string) ([]models.UploadRecord, error)
	ImageVersion(ctx context.Context) (string, error)
	Compile(ctx context.Context, id string, build bool) error
	UpdateAnalysis(ctx context.Context, id string, patch models.AnalysisPatch) error
	Ready(ctx context.Context) error
}

// HTTPClient implements Client using the Neuroscout HTTP API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a new Neuroscout HTTP client. An empty token sends
// unauthenticated requests, which only work for public analyses.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Analysis(ctx context.Context, id string) (*models.Analysis, error) {
	var a models.Analysis
	if err := c.doJSON(ctx, http.MethodGet, c.analysisURL(id, ""), nil, &a); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = id
	}
	return &a, nil
}

// CompileTraceback returns the compile traceback for a failed analysis, or ""
// when the upstream has none.
func (c *HTTPClient) CompileTraceback(ctx context.Context, id string) (string, error) {
	var resp compileResponse
	if err := c.doJSON(ctx, http.MethodGet, c.analysisURL(id, "/compile"), nil, &resp); err != nil {
		return "", err
	}
	if resp.Traceback == nil {
		return "", nil
	}
	return *resp.Traceback, nil
}

// Uploads lists NeuroVault upload batches. A JSON null body yields a nil
// slice and no error; callers treat that as "no data yet".
func (c *HTTPClient) Uploads(ctx context.Context, id string) ([]models.UploadRecord, error) {
	var records []models.UploadRecord
	if err := c.doJSON(ctx, http.MethodGet, c.analysisURL(id, "/upload"), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *HTTPClient) ImageVersion(ctx context.Context) (string, error) {
	var resp imageVersionResponse
	u := fmt.Sprintf("%s/api/image_version", c.baseURL)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// Compile asks the upstream to build the analysis bundle. build controls
// whether design matrices are validated for every run.
func (c *HTTPClient) Compile(ctx context.Context, id string, build bool) error {
	u := c.analysisURL(id, "/compile") + "?" + url.Values{"build": {strconv.FormatBool(build)}}.Encode()
	return c.doJSON(ctx, http.MethodPost, u, nil, nil)
}

func (c *HTTPClient) UpdateAnalysis(ctx context.Context, id string, patch models.AnalysisPatch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encoding analysis patch: %w", err)
	}
	return c.doJSON(ctx, http.MethodPut, c.analysisURL(id, ""), body, nil)
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/api/image_version", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: neuroscout not ready (status %d)", ErrUpstreamUnreachable, resp.StatusCode)
	}

	return nil
}

func (c *HTTPClient) analysisURL(id, suffix string) string {
	return fmt.Sprintf("%s/api/analyses/%s%s", c.baseURL, url.PathEscape(id), suffix)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, u string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s: status %d", ErrUpstreamStatus, method, httpReq.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding neuroscout response: %w", err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "JWT "+c.token)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
}

// --- Neuroscout response types ---

type compileResponse struct {
	Traceback *string `json:"traceback"`
}

type imageVersionResponse struct {
	Version string `json:"version"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
