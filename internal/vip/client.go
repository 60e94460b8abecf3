// Package vip is the HTTP client for the object API.
//
// Requests are authenticated with OAuth2 client credentials; tokens are
// cached and refreshed by the oauth2 transport. Network failures that are
// safe to retry are wrapped with core.ErrTransient, other non-2xx
// responses are returned as *core.APIError.
package vip

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/JonMunkholm/datamakelaar/internal/core"
)

// API paths relative to the base URL.
const (
	pathMetadata = "v1/metadata"
	pathObjects  = "v1/objects"
	pathFilter   = "v1/objects/filterByObjectType"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// Options configures a Client.
type Options struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string

	// HTTPClient is used for both token and API requests. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Client implements core.ObjectAPI over HTTP.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

var _ core.ObjectAPI = (*Client)(nil)

// New creates a client that fetches tokens from opts.TokenURL.
func New(opts Options) (*Client, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("vip: client id and secret are required")
	}
	if opts.TokenURL == "" {
		return nil, errors.New("vip: token url is required")
	}

	cc := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	return NewWithHTTPClient(opts.BaseURL, cc.Client(ctx))
}

// NewWithHTTPClient creates a client that sends requests through hc as is.
// hc is expected to add authentication.
func NewWithHTTPClient(baseURL string, hc *http.Client) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: base, http: hc, logger: slog.Default()}, nil
}

// WithLogger sets the client logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

func parseBaseURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("vip: base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("vip: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("vip: base url %q must be absolute", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// GetMetadata fetches the metadata for objectType. The API sometimes fails
// on the filtered request with a 500; the request is then repeated once
// without the filter.
func (c *Client) GetMetadata(ctx context.Context, objectType string) (*core.MetadataPayload, error) {
	params := url.Values{}
	if objectType != "" {
		params.Set("objectType", objectType)
	}

	var payload core.MetadataPayload
	err := c.do(ctx, http.MethodGet, pathMetadata, params, nil, &payload)

	var apiErr *core.APIError
	if objectType != "" && errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusInternalServerError {
		c.logger.Warn("metadata request failed, retrying without object type filter",
			"object_type", objectType,
		)
		payload = core.MetadataPayload{}
		err = c.do(ctx, http.MethodGet, pathMetadata, nil, nil, &payload)
	}
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetObjects fetches one page of objects. A bare JSON list response is
// treated as a single page.
func (c *Client) GetObjects(ctx context.Context, q core.ObjectQuery) (*core.ObjectPage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, pathFilter, objectParams(q), nil, &raw); err != nil {
		return nil, err
	}
	return decodePage(raw)
}

func objectParams(q core.ObjectQuery) url.Values {
	params := url.Values{}
	params.Set("objectType", q.ObjectType)
	params.Set("onlyActive", strconv.FormatBool(q.OnlyActive))
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("pageSize", strconv.Itoa(q.PageSize))
	for _, a := range q.Attributes {
		params.Add("attributes", a)
	}
	if q.Identifier != "" {
		params.Set("identifier", q.Identifier)
	}
	for k, v := range q.Filters {
		params.Set(k, v)
	}
	return params
}

func decodePage(raw json.RawMessage) (*core.ObjectPage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var objects []core.APIObject
		if err := json.Unmarshal(raw, &objects); err != nil {
			return nil, fmt.Errorf("decode objects: %w", err)
		}
		return &core.ObjectPage{Objects: objects, TotalCount: len(objects)}, nil
	}

	var page core.ObjectPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode objects page: %w", err)
	}
	if page.Objects == nil {
		page.Objects = []core.APIObject{}
	}
	return &page, nil
}

// SaveObjects writes objects with POST (upsert) or PUT (update).
func (c *Client) SaveObjects(ctx context.Context, mode core.WriteMode, objects []core.APIObject) ([]core.ObjectResult, error) {
	method := http.MethodPut
	if mode == core.WriteUpsert {
		method = http.MethodPost
	}

	body, err := json.Marshal(objects)
	if err != nil {
		return nil, fmt.Errorf("encode objects: %w", err)
	}

	var raw json.RawMessage
	if err := c.do(ctx, method, pathObjects, nil, body, &raw); err != nil {
		return nil, err
	}
	return decodeResults(raw)
}

// decodeResults accepts a list of results or a single result object. An
// empty body yields no results.
func decodeResults(raw json.RawMessage) ([]core.ObjectResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var results []core.ObjectResult
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
		return results, nil
	}

	var result core.ObjectResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return []core.ObjectResult{result}, nil
}

// do sends one request and decodes a 2xx JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, out any) error {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("api request", "method", method, "path", path, "params", params.Encode())

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(ctx, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &core.APIError{
			Method:     method,
			Path:       "/" + path,
			StatusCode: resp.StatusCode,
			Body:       string(msg),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(ctx, method, path, err)
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = data
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s /%s: %w", method, path, err)
	}
	return nil
}

// classify wraps transport errors. Cancellation by the caller is returned
// as is; timeouts and dropped connections are transient.
func classify(ctx context.Context, method, path string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%s /%s: %w: %w", method, path, core.ErrTransient, ctxErr)
		}
		return ctxErr
	}
	if isTransportFailure(err) {
		return fmt.Errorf("%s /%s: %w: %w", method, path, core.ErrTransient, err)
	}
	return fmt.Errorf("%s /%s: %w", method, path, err)
}

func isTransportFailure(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}
