package images

import (
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

	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxErrorBodyBytes     = 512

	opFetchPage = "images.fetch_page"
	opFetchByID = "images.fetch_by_id"
	opSearch    = "images.search"
)

var (
	errMissingBaseURL   = errors.New("images: base url required")
	errMissingAccessKey = errors.New("images: access key required")
	errMissingImageID   = errors.New("images: image id required")
	errInvalidPage      = errors.New("images: page must be positive")
)

// FetchError reports a failed or unsuccessful call to the image API. A missing image is a
// FetchError with StatusCode 404.
type FetchError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the API answered 404.
func (e *FetchError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Source is the read surface of the remote image API.
type Source interface {
	FetchPage(ctx context.Context, page, perPage int) ([]Image, error)
	FetchByID(ctx context.Context, imageID string) (Image, error)
	Search(ctx context.Context, query string, page int) (SearchResult, error)
}

// ClientConfig configures the HTTP client of the image API.
type ClientConfig struct {
	BaseURL    string
	AccessKey  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the Unsplash-compatible photo API. It performs no retries.
type Client struct {
	baseURL    *url.URL
	accessKey  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient validates the configuration and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	rawBaseURL := strings.TrimSpace(cfg.BaseURL)
	if rawBaseURL == "" {
		return nil, errMissingBaseURL
	}
	baseURL, err := url.Parse(strings.TrimRight(rawBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("images: invalid base url: %w", err)
	}
	accessKey := strings.TrimSpace(cfg.AccessKey)
	if accessKey == "" {
		return nil, errMissingAccessKey
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		accessKey:  accessKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// FetchPage returns one page of the latest photos. perPage values below one use DefaultPageSize.
func (c *Client) FetchPage(ctx context.Context, page, perPage int) ([]Image, error) {
	if page < 1 {
		return nil, &FetchError{Operation: opFetchPage, Err: errInvalidPage}
	}
	if perPage < 1 {
		perPage = DefaultPageSize
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	query.Set("order_by", "latest")

	var images []Image
	if err := c.getJSON(ctx, opFetchPage, "/photos", query, &images); err != nil {
		return nil, err
	}
	if images == nil {
		images = []Image{}
	}
	return images, nil
}

// FetchByID returns a single photo.
func (c *Client) FetchByID(ctx context.Context, imageID string) (Image, error) {
	trimmed := strings.TrimSpace(imageID)
	if trimmed == "" {
		return Image{}, &FetchError{Operation: opFetchByID, Err: errMissingImageID}
	}
	var image Image
	if err := c.getJSON(ctx, opFetchByID, "/photos/"+url.PathEscape(trimmed), url.Values{}, &image); err != nil {
		return Image{}, err
	}
	return image, nil
}

// Search returns one page of photos matching the query.
func (c *Client) Search(ctx context.Context, query string, page int) (SearchResult, error) {
	if page < 1 {
		page = 1
	}
	values := url.Values{}
	values.Set("query", strings.TrimSpace(query))
	values.Set("page", strconv.Itoa(page))

	var result SearchResult
	if err := c.getJSON(ctx, opSearch, "/search/photos", values, &result); err != nil {
		return SearchResult{}, err
	}
	if result.Results == nil {
		result.Results = []Image{}
	}
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, operation, path string, query url.Values, target any) error {
	query.Set("client_id", c.accessKey)
	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	endpoint.RawQuery = query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), http.NoBody)
	if err != nil {
		return &FetchError{Operation: operation, Err: err}
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Accept-Version", "v1")

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("image api request failed", zap.String("operation", operation), zap.Error(err))
		return &FetchError{Operation: operation, Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
		c.logger.Warn("image api returned non-success status",
			zap.String("operation", operation),
			zap.Int("status", response.StatusCode))
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = http.StatusText(response.StatusCode)
		}
		return &FetchError{
			Operation:  operation,
			StatusCode: response.StatusCode,
			Err:        errors.New(detail),
		}
	}

	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return &FetchError{Operation: operation, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
