package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fiberlab/otdr-persist/internal/source"
)

const (
	// maxSnapshotBytes bounds a single analysis download.
	maxSnapshotBytes = 32 << 20

	defaultMaxTries      = 3
	defaultRetryInterval = 200 * time.Millisecond
)

// statusError is a non-2xx reply the bridge may recover from.
type statusError struct {
	status string
	code   int
}

func (e *statusError) Error() string { return "front panel returned " + e.status }

// FrontPanelClient fetches the current analysis from the front panel bridge.
type FrontPanelClient struct {
	baseURL      string
	analysisPath string
	httpClient   *http.Client

	maxTries      uint
	retryInterval time.Duration
}

// NewFrontPanelClient constructs a client targeting the configured front panel bridge.
func NewFrontPanelClient(baseURL, analysisPath string, timeout time.Duration) *FrontPanelClient {
	return &FrontPanelClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		analysisPath: analysisPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxTries:      defaultMaxTries,
		retryInterval: defaultRetryInterval,
	}
}

// Load implements source.Loader. An unreachable bridge, or one that reports no
// analysis, yields source.ErrUnavailable.
func (c *FrontPanelClient) Load(ctx context.Context) (source.Analysis, error) {
	if c == nil {
		return nil, fmt.Errorf("front panel client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("front panel base URL not configured")
	}

	data, err := c.getWithRetry(ctx, c.analysisURL())
	if err != nil {
		return nil, err
	}
	snap, err := source.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("front panel analysis: %w", err)
	}
	return snap, nil
}

func (c *FrontPanelClient) analysisURL() string {
	return c.resolvePath(firstNonEmpty(c.analysisPath, "/api/v1/analysis/current"))
}

func (c *FrontPanelClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

// getWithRetry retries server errors only. Unavailability and client errors
// are returned on the first attempt.
func (c *FrontPanelClient) getWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	return backoff.Retry(ctx, func() ([]byte, error) {
		data, err := c.get(ctx, endpoint)
		if err == nil {
			return data, nil
		}
		var se *statusError
		if errors.As(err, &se) && se.code >= http.StatusInternalServerError {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.maxTries))
}

func (c *FrontPanelClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/yaml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: front panel returned %s", source.ErrUnavailable, resp.Status)
	default:
		return nil, &statusError{status: resp.Status, code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// SnapshotFile loads an analysis exported to disk.
type SnapshotFile struct {
	path string
}

// NewSnapshotFile returns a loader reading path on every Load.
func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

// Load implements source.Loader. A missing file yields source.ErrUnavailable.
func (f *SnapshotFile) Load(ctx context.Context) (source.Analysis, error) {
	return LoadSnapshotFile(f.path)
}

// LoadSnapshotFile reads and decodes an exported analysis snapshot.
func LoadSnapshotFile(p string) (*source.Snapshot, error) {
	if strings.TrimSpace(p) == "" {
		return nil, fmt.Errorf("%w: no snapshot path configured", source.ErrUnavailable)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", source.ErrUnavailable, err)
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := source.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", p, err)
	}
	return snap, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
