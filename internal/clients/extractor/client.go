package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quickread/quickread-backend/internal/pkg/httpx"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
)

// Result is the collaborator contract of the extraction engine: clean UTF-8
// text plus basic metadata (page count, domain, title, ...).
type Result struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Client fronts the external PDF-to-text / URL-to-text extraction engine.
// The engine itself is out of scope here; this client only moves bytes and
// surfaces failures.
type Client interface {
	ExtractPDF(ctx context.Context, filename string, file io.Reader) (*Result, error)
	ExtractURL(ctx context.Context, url string) (*Result, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	baseURL := strings.TrimSpace(os.Getenv("EXTRACTOR_BASE_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing EXTRACTOR_BASE_URL")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeoutSec := 120
	if v := os.Getenv("EXTRACTOR_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 2
	if v := os.Getenv("EXTRACTOR_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &client{
		log:        log.With("service", "ExtractorClient"),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

type extractorHTTPError struct {
	StatusCode int
	Body       string
}

func (e *extractorHTTPError) Error() string {
	return fmt.Sprintf("extractor http %d: %s", e.StatusCode, e.Body)
}

func (e *extractorHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) ExtractPDF(ctx context.Context, filename string, file io.Reader) (*Result, error) {
	// The engine is not guaranteed to be idempotent on a consumed reader, so
	// buffer once and replay per attempt.
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	build := func() (*http.Request, error) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(raw); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/extract/pdf", &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}

	return c.doWithRetry(ctx, "/v1/extract/pdf", build)
}

func (c *client) ExtractURL(ctx context.Context, url string) (*Result, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("url required")
	}

	build := func() (*http.Request, error) {
		payload, err := json.Marshal(map[string]string{"url": url})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/extract/url", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	return c.doWithRetry(ctx, "/v1/extract/url", build)
}

func (c *client) doWithRetry(ctx context.Context, path string, build func() (*http.Request, error)) (*Result, error) {
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = readErr
			} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				lastErr = &extractorHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
			} else {
				var out Result
				if uErr := json.Unmarshal(raw, &out); uErr != nil {
					return nil, fmt.Errorf("extractor decode error: %w", uErr)
				}
				return &out, nil
			}
		}

		if !httpx.IsRetryableError(lastErr) || attempt == c.maxRetries {
			return nil, lastErr
		}

		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("Extractor request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", lastErr.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}

	return nil, lastErr
}
