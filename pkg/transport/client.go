/*
Package transport implements the client side of the Longbow wire protocol.
The store exposes two logical channels: a data channel for bulk columnar
upload, download and ticket-based queries, and a control channel for
namespace lifecycle, info, snapshot and graph actions. Connection
establishment retries against the control channel only; listing the known
namespaces doubles as the liveness probe.
*/
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/longbow-go/pkg/errors"
	"github.com/theapemachine/longbow-go/pkg/wire"
)

// ContentTypeColumnar is the media type of columnar frame bodies.
const ContentTypeColumnar = "application/vnd.longbow.columnar"

// Client speaks to one Longbow store over its data and control endpoints.
type Client struct {
	DataURL    string
	ControlURL string

	httpClient *http.Client
	retry      *errors.RetryConfig
	connected  bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryConfig overrides the connect handshake retry budget.
func WithRetryConfig(config *errors.RetryConfig) ClientOption {
	return func(c *Client) { c.retry = config }
}

// WithHTTPClient overrides the underlying HTTP client, mostly for tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// New creates a client for the given data and control endpoints. No network
// traffic happens until Connect.
func New(dataURL, controlURL string, options ...ClientOption) *Client {
	client := &Client{
		DataURL:    strings.TrimRight(dataURL, "/"),
		ControlURL: strings.TrimRight(controlURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      errors.DefaultRetryConfig(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// Connect establishes both channels. The control channel is probed with
// bounded retries because the store process may still be starting; once it
// answers, the data channel is opened with a single probe and any failure
// there surfaces immediately.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected {
		return nil
	}

	attempt := 0
	err := errors.RetryWithBackoff(ctx, c.retry, func() error {
		attempt++
		if _, err := c.ListNamespaces(ctx); err != nil {
			log.Warn("waiting for longbow", "attempt", attempt, "max", c.retry.MaxAttempts, "err", err)
			return err
		}
		return nil
	})
	if err != nil {
		return errors.NewConnectivityError(c.ControlURL, c.retry.MaxAttempts, err)
	}

	if err := c.probeData(ctx); err != nil {
		return errors.NewConnectivityError(c.DataURL, 1, err)
	}

	c.connected = true
	log.Info("connected to longbow", "data", c.DataURL, "control", c.ControlURL)
	return nil
}

func (c *Client) probeData(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DataURL+"/ping", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("data channel probe status %s", resp.Status)
	}

	return nil
}

// Upload sends a columnar batch to the namespace.
func (c *Client) Upload(ctx context.Context, namespace string, buf *wire.Buffer) error {
	frame, err := buf.Marshal()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/namespaces/%s/records", c.DataURL, namespace),
		bytes.NewReader(frame),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", ContentTypeColumnar)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload to %q failed: status %s", namespace, resp.Status)
	}

	return nil
}

// Query runs a vector, hybrid, filtered or by-id query. The store answers
// the request with a ticket which is then redeemed for the columnar result
// frame.
func (c *Client) Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) (*wire.Buffer, error) {
	if opts.SeedID != "" && vector != nil {
		return nil, errors.NewValidationError("query", "seed id and query vector are mutually exclusive")
	}

	request := queryRequest{
		Dataset:   namespace,
		Vector:    vector,
		K:         opts.K,
		Alpha:     opts.Alpha,
		TextQuery: opts.TextQuery,
		Filters:   opts.Filters,
		SeedID:    opts.SeedID,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/namespaces/%s/query", c.DataURL, namespace),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewQueryError(namespace, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, errors.NewQueryError(namespace, fmt.Errorf("query status %s", resp.Status))
	}

	var ticket ticketResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return nil, errors.NewQueryError(namespace, err)
	}

	return c.redeemTicket(ctx, namespace, ticket.Ticket)
}

func (c *Client) redeemTicket(ctx context.Context, namespace, ticket string) (*wire.Buffer, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/tickets/%s", c.DataURL, ticket),
		nil,
	)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewQueryError(namespace, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, errors.NewQueryError(namespace, fmt.Errorf("ticket %s status %s", ticket, resp.Status))
	}

	frame, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewQueryError(namespace, err)
	}

	buf, err := wire.Unmarshal(frame)
	if err != nil {
		return nil, errors.NewQueryError(namespace, err)
	}

	return buf, nil
}

// DownloadAll fetches every record in the namespace as one columnar frame.
func (c *Client) DownloadAll(ctx context.Context, namespace string) (*wire.Buffer, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/namespaces/%s/records", c.DataURL, namespace),
		nil,
	)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download of %q failed: status %s", namespace, resp.Status)
	}

	frame, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return wire.Unmarshal(frame)
}

// actionError carries the status and message of a failed control action.
type actionError struct {
	Status  int
	Message string
}

func (e *actionError) Error() string {
	return fmt.Sprintf("control action failed (status %d): %s", e.Status, e.Message)
}

// ControlAction posts a named JSON action to the control channel and returns
// the raw response body.
func (c *Client) ControlAction(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/actions/%s", c.ControlURL, name),
		body,
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 300 {
		return nil, &actionError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	return raw, nil
}

// ListNamespaces enumerates the datasets the store knows about.
func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	raw, err := c.ControlAction(ctx, "list_namespaces", nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Namespaces []string `json:"namespaces"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out.Namespaces, nil
}

// CreateNamespace creates a dataset on the store.
func (c *Client) CreateNamespace(ctx context.Context, name string, overwrite bool) error {
	_, err := c.ControlAction(ctx, "create_namespace", CreateNamespacePayload{Name: name, Overwrite: overwrite})
	return err
}

// EnsureNamespace creates the namespace if it does not exist yet. A store
// that reports the namespace as already present is treated as success; only
// true transport failures propagate.
func (c *Client) EnsureNamespace(ctx context.Context, name string) error {
	err := c.CreateNamespace(ctx, name, false)
	if err == nil {
		return nil
	}

	var action *actionError
	if stderrors.As(err, &action) {
		if action.Status == http.StatusConflict || strings.Contains(action.Message, "already exists") {
			return nil
		}
	}

	return err
}

// DeleteNamespace removes a dataset and all of its records.
func (c *Client) DeleteNamespace(ctx context.Context, name string) error {
	_, err := c.ControlAction(ctx, "delete_namespace", DeleteNamespacePayload{Name: name})
	return err
}

// Info returns record and byte counts for the namespace. Counts of -1 mean
// the store could not produce them cheaply.
func (c *Client) Info(ctx context.Context, name string) (*NamespaceInfo, error) {
	raw, err := c.ControlAction(ctx, "info", InfoPayload{Name: name})
	if err != nil {
		return nil, err
	}

	info := &NamespaceInfo{TotalRecords: -1, TotalBytes: -1}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, err
	}

	return info, nil
}

// Snapshot asks the store to persist its state. Fire and forget from the
// client's perspective.
func (c *Client) Snapshot(ctx context.Context) error {
	_, err := c.ControlAction(ctx, "snapshot", nil)
	return err
}

// AddEdge inserts one directed weighted edge between two native node ids.
func (c *Client) AddEdge(ctx context.Context, payload AddEdgePayload) error {
	_, err := c.ControlAction(ctx, "add_edge", payload)
	return err
}

// Traverse delegates a bounded breadth-first walk to the store and passes
// the node results through untouched.
func (c *Client) Traverse(ctx context.Context, payload TraversePayload) ([]NodeResult, error) {
	raw, err := c.ControlAction(ctx, "traverse", payload)
	if err != nil {
		return nil, err
	}

	var out struct {
		Results []NodeResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out.Results, nil
}
