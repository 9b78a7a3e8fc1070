package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// StatusError is a response outside the 2xx range.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
}

// API is a small JSON client rooted at baseURL.
type API struct {
	client  *http.Client
	baseURL string
}

// NewAPI returns a client for baseURL. A nil client means http.DefaultClient.
func NewAPI(baseURL string, client *http.Client) *API {
	if client == nil {
		client = http.DefaultClient
	}
	return &API{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// URL joins path onto the base URL.
func (a *API) URL(path string, params url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return a.baseURL + path
}

func (a *API) Get(ctx context.Context, path string, params url.Values, v any) error {
	return a.Do(ctx, http.MethodGet, path, params, nil, nil, v)
}

func (a *API) Post(ctx context.Context, path string, body any, header http.Header, v any) error {
	return a.Do(ctx, http.MethodPost, path, nil, body, header, v)
}

// Head reports whether path answered with a 2xx status.
func (a *API) Head(ctx context.Context, path string) error {
	return a.Do(ctx, http.MethodHead, path, nil, nil, nil, nil)
}

// Do sends one request. body is JSON encoded when not nil and the response
// is decoded into v when v is not nil.
func (a *API) Do(ctx context.Context, method, path string, params url.Values, body any, header http.Header, v any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	target := a.URL(path, params)
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	for k, values := range header {
		for _, value := range values {
			req.Header.Add(k, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: method, URL: target, Code: resp.StatusCode}
	}
	if v == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}
