// Package client talks to the margin HTTP API. It is the remote the autosave
// coordinator loads from and saves to.
package client

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

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/autosave"
	"github.com/hpungsan/margin/internal/errors"
	"github.com/hpungsan/margin/internal/study"
)

// DefaultTimeout bounds a single request when the context has no deadline.
const DefaultTimeout = 15 * time.Second

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Client is an HTTP client for the margin server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL, e.g. "http://127.0.0.1:8470".
// A nil httpClient uses one with DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

var _ autosave.Remote = (*Client)(nil)

// Load fetches the composite study document.
func (c *Client) Load(ctx context.Context, key autosave.Key) (*study.Document, error) {
	var doc study.Document
	if err := c.do(ctx, http.MethodGet, documentPath(key), nil, &doc); err != nil {
		return nil, err
	}
	doc.Normalize()
	return &doc, nil
}

// Save replaces the composite study document.
func (c *Client) Save(ctx context.Context, key autosave.Key, doc study.Document) error {
	doc.Normalize()
	return c.do(ctx, http.MethodPut, documentPath(key), doc, nil)
}

// ListAnnotations returns the active annotations of a student on a subject.
func (c *Client) ListAnnotations(ctx context.Context, subjectID, studentID string) ([]annotation.Record, error) {
	var out struct {
		Items []annotation.Record `json:"items"`
	}
	path := "/summaries/" + url.PathEscape(subjectID) + "/annotations?student_id=" + url.QueryEscape(studentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func documentPath(key autosave.Key) string {
	return "/students/" + url.PathEscape(key.StudentID) +
		"/summaries/" + url.PathEscape(key.SubjectID) + "/study-document"
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternal(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewNetwork(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewNetwork(fmt.Errorf("decode %s %s response: %w", method, path, err))
	}
	return nil
}

type errorEnvelope struct {
	Error struct {
		Code    errors.ErrorCode `json:"code"`
		Message string           `json:"message"`
		Status  int              `json:"status"`
		Details map[string]any   `json:"details,omitempty"`
	} `json:"error"`
}

// decodeError turns a non-2xx response into a MarginError, keeping the
// server's code when the body is a margin error envelope.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Code != "" {
		status := env.Error.Status
		if status == 0 {
			status = resp.StatusCode
		}
		return &errors.MarginError{
			Code:    env.Error.Code,
			Status:  status,
			Message: env.Error.Message,
			Details: env.Error.Details,
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.NewNotFound(resp.Request.URL.Path)
	case resp.StatusCode >= 500:
		return errors.NewNetwork(fmt.Errorf("server returned %s", resp.Status))
	default:
		return &errors.MarginError{
			Code:    errors.ErrBadRequest,
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(raw)),
		}
	}
}
