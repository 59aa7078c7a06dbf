// Package registry is a thin client for the remote metadata service of
// record. The registry owns user accounts and file metadata; the gateway
// treats it as a key-value metadata store reachable over HTTP and forwards
// the caller's bearer token on every request.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// metadataTimeout bounds plain metadata round-trips.
	metadataTimeout = 10 * time.Second
	// transferTimeout bounds calls that accompany a blob transfer, where the
	// registry may be slower to acknowledge.
	transferTimeout = 30 * time.Second
)

var (
	// ErrUnavailable indicates the registry could not be reached at all.
	ErrUnavailable = errors.New("registry unavailable")

	// ErrNotFound indicates the registry has no record under the given id.
	ErrNotFound = errors.New("record not found")
)

// RejectedError is returned when the registry answers with a non-2xx status.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("registry rejected request: status %d: %s", e.Status, e.Body)
}

// Client talks to the registry's workflow API.
type Client struct {
	baseURL  string
	http     *http.Client
	transfer *http.Client
}

// NewClient creates a registry client rooted at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     &http.Client{Timeout: metadataTimeout},
		transfer: &http.Client{Timeout: transferTimeout},
	}
}

// CreateFile registers a new file record and returns the identity the
// registry assigned to it. It is called with the blob already written, so it
// uses the longer transfer timeout.
func (c *Client) CreateFile(ctx context.Context, token string, rec Record) (string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	respBody, err := c.do(ctx, c.transfer, http.MethodPost, "/filemanagement/upload", token, body)
	if err != nil {
		return "", err
	}

	id, ok := extractID(respBody)
	if !ok {
		return "", fmt.Errorf("registry response missing record id")
	}
	return id, nil
}

// ListFiles returns every record the registry holds for the token's account.
// The registry has no pagination; the whole collection comes back at once.
func (c *Client) ListFiles(ctx context.Context, token string) ([]Record, error) {
	body, err := c.do(ctx, c.http, http.MethodGet, "/filemanagement/list", token, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecords(body), nil
}

// GetFile returns the record stored under id.
func (c *Client) GetFile(ctx context.Context, token string, id string) (Record, error) {
	body, err := c.do(ctx, c.http, http.MethodGet, "/filemanagement/files/"+id, token, nil)
	if err != nil {
		return Record{}, err
	}

	rec, ok := decodeRecord(body)
	if !ok {
		return Record{}, fmt.Errorf("%w: unrecognized record payload for id %s", ErrNotFound, id)
	}
	return rec, nil
}

// DeleteFile removes the record stored under id.
func (c *Client) DeleteFile(ctx context.Context, token string, id string) error {
	_, err := c.do(ctx, c.http, http.MethodDelete, "/filemanagement/files/"+id, token, nil)
	return err
}

// ProxyResponse is a verbatim registry reply passed through to the client.
type ProxyResponse struct {
	Status int
	Body   json.RawMessage
}

// Signup forwards a registration request to the registry and returns its
// reply unmodified. The registry is the authority on accounts; the gateway
// never inspects credentials.
func (c *Client) Signup(ctx context.Context, body []byte) (ProxyResponse, error) {
	return c.proxy(ctx, "/userauthflow/signup", body)
}

// Login forwards a login request to the registry and returns its reply
// unmodified.
func (c *Client) Login(ctx context.Context, body []byte) (ProxyResponse, error) {
	return c.proxy(ctx, "/userauthflow/login", body)
}

// Ping reports whether the registry answers HTTP at all. Any response,
// including an error status, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/filemanagement/list", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) proxy(ctx context.Context, path string, body []byte) (ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return ProxyResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ProxyResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ProxyResponse{}, fmt.Errorf("read registry response: %w", err)
	}
	if !json.Valid(respBody) {
		respBody, _ = json.Marshal(map[string]string{"detail": strings.TrimSpace(string(respBody))})
	}
	return ProxyResponse{Status: resp.StatusCode, Body: respBody}, nil
}

func (c *Client) do(ctx context.Context, client *http.Client, method, path, token string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read registry response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RejectedError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

// extractID digs the assigned record id out of a create response, tolerating
// the registry's bare / data-wrapped shapes and string or numeric ids.
func extractID(body []byte) (string, bool) {
	var direct struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &direct); err == nil {
		if id, ok := rawToString(direct.ID); ok {
			return id, true
		}
	}

	var wrapped struct {
		Data struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if id, ok := rawToString(wrapped.Data.ID); ok {
			return id, true
		}
	}
	return "", false
}

func rawToString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
		return n.String(), true
	}
	return "", false
}
