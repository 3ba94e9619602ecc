// Package httpapi is the HTTP client the local (fast) backend uses to
// reach the Notion REST API directly — an external collaborator per the
// system's component boundary, specified only through the interface it
// must satisfy. Grounded on net/http usage conventions in
// internal/server (outbound webhook/notification calls) for client
// construction; this package supplies the concrete
// implementation left as an injected dependency elsewhere.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Operation is the fully-resolved HTTP call the local backend asks the
// client to perform: method, a path template with `{param}` placeholders,
// and the base URL to resolve it against.
type Operation struct {
	Method  string
	Path    string
	BaseURL string
}

// Response is the successful-call shape the local backend wraps into an
// MCP text result.
type Response struct {
	Data    interface{}
	Status  int
	Headers map[string]string
}

// HttpClientError is returned for any non-2xx response or transport
// failure. Its fields mirror what the local backend forwards verbatim
// into the error result payload.
type HttpClientError struct {
	Message string
	Status  int
	Data    interface{}
	Headers map[string]string
}

func (e *HttpClientError) Error() string {
	return fmt.Sprintf("httpapi: %s (status %d)", e.Message, e.Status)
}

// Client is the capability the local backend depends on. Implementations
// must not swallow non-2xx responses — they return *HttpClientError.
type Client interface {
	Do(ctx context.Context, op Operation, pathParams, queryParams map[string]interface{}, body interface{}, headers map[string]string) (*Response, error)
}

// NotionClient is the concrete net/http-backed implementation reaching
// the hosted Notion REST API.
type NotionClient struct {
	httpClient *http.Client
	apiVersion string
}

// New constructs a NotionClient with a bounded per-request timeout: each
// request is cut off after at most 30 seconds, whatever deadline the
// caller's context carries, so a hung socket cannot block a caller
// indefinitely.
func New(apiVersion string) *NotionClient {
	return &NotionClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiVersion: apiVersion,
	}
}

// Do substitutes pathParams into op.Path's `{name}` placeholders, appends
// queryParams as a query string, marshals body as a JSON request body
// when non-nil, and attaches headers verbatim (the caller is responsible
// for including Authorization). Non-2xx responses are parsed as JSON
// where possible and returned as *HttpClientError.
func (c *NotionClient) Do(ctx context.Context, op Operation, pathParams, queryParams map[string]interface{}, body interface{}, headers map[string]string) (*Response, error) {
	resolvedPath := substitutePathParams(op.Path, pathParams)

	u, err := url.Parse(strings.TrimRight(op.BaseURL, "/") + resolvedPath)
	if err != nil {
		return nil, &HttpClientError{Message: fmt.Sprintf("invalid URL: %v", err), Status: 0}
	}
	if len(queryParams) > 0 {
		q := u.Query()
		for k, v := range queryParams {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &HttpClientError{Message: fmt.Sprintf("marshal request body: %v", err), Status: 0}
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(op.Method), u.String(), reqBody)
	if err != nil {
		return nil, &HttpClientError{Message: fmt.Sprintf("build request: %v", err), Status: 0}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiVersion != "" {
		req.Header.Set("Notion-Version", c.apiVersion)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &HttpClientError{Message: fmt.Sprintf("request failed: %v", err), Status: 0}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &HttpClientError{Message: fmt.Sprintf("read response body: %v", err), Status: resp.StatusCode}
	}

	var parsed interface{}
	if len(rawBody) > 0 {
		_ = json.Unmarshal(rawBody, &parsed)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("request to %s returned status %d", resolvedPath, resp.StatusCode)
		if obj, ok := parsed.(map[string]interface{}); ok {
			if m, ok := obj["message"].(string); ok && m != "" {
				msg = m
			}
		}
		return nil, &HttpClientError{Message: msg, Status: resp.StatusCode, Data: parsed, Headers: respHeaders}
	}

	return &Response{Data: parsed, Status: resp.StatusCode, Headers: respHeaders}, nil
}

func substitutePathParams(path string, params map[string]interface{}) string {
	if len(params) == 0 {
		return path
	}
	out := path
	for k, v := range params {
		out = strings.ReplaceAll(out, "{"+k+"}", url.PathEscape(fmt.Sprintf("%v", v)))
	}
	return out
}
