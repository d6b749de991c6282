// Package remote is the HTTP client for the central document store. The
// endpoint speaks a CouchDB-compatible dialect: per-document get/put,
// selector _find, _all_docs, a _changes feed, and idempotent _index
// creation.
package remote

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

	"github.com/angelmondragon/tillpoint-terminal/pkg/config"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
)

const responseBodyReadLimit int64 = 2048

// Client talks to the remote authoritative store.
type Client struct {
	httpClient *http.Client
	baseURL    string
	database   string
	username   string
	password   string
	token      string
}

var _ docstore.Store = (*Client)(nil)

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken sets a bearer token used instead of basic credentials.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// NewClient builds a remote store client from configuration.
func NewClient(cfg config.RemoteStoreConfig, opts ...Option) (*Client, error) {
	if !cfg.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "remote store URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		database:   cfg.Database,
		username:   cfg.Username,
		password:   cfg.Password,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// Ping probes the endpoint. Any 2xx counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/_up", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return c.statusError(resp, "remote store health check failed")
	}
	return nil
}

// Get fetches one document by id.
func (c *Client) Get(ctx context.Context, id string) (*docstore.Document, error) {
	resp, err := c.do(ctx, http.MethodGet, c.docURL(id), nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "fetching remote document")
	}

	var wire map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding remote document")
	}
	doc, err := fromWire(wire)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Put writes one document. The remote enforces the same revision-token
// concurrency the local replica does; a stale rev maps to CONFLICT.
func (c *Client) Put(ctx context.Context, doc docstore.Document) (*docstore.Document, error) {
	if doc.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document id required")
	}

	payload, err := toWire(doc)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPut, c.docURL(doc.ID), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "writing remote document")
	}

	var ack struct {
		ID  string `json:"id"`
		Rev string `json:"rev"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding put acknowledgement")
	}
	doc.Rev = ack.Rev
	return &doc, nil
}

// Find runs an equality selector over the indexed fields.
func (c *Client) Find(ctx context.Context, sel docstore.Selector) ([]docstore.Document, error) {
	selector := map[string]any{}
	if sel.Type != "" {
		selector["type"] = sel.Type.String()
	}
	if sel.Status != "" {
		selector["status"] = sel.Status
	}
	body, err := json.Marshal(map[string]any{"selector": selector})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding selector")
	}

	resp, err := c.do(ctx, http.MethodPost, c.dbURL("_find"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "running remote find")
	}

	var result struct {
		Docs []map[string]json.RawMessage `json:"docs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding find response")
	}
	return fromWireList(result.Docs)
}

// AllDocs lists every live document.
func (c *Client) AllDocs(ctx context.Context) ([]docstore.Document, error) {
	resp, err := c.do(ctx, http.MethodGet, c.dbURL("_all_docs")+"?include_docs=true", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "listing remote documents")
	}

	var result struct {
		Rows []struct {
			Doc map[string]json.RawMessage `json:"doc"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding all_docs response")
	}

	wires := make([]map[string]json.RawMessage, 0, len(result.Rows))
	for _, row := range result.Rows {
		if row.Doc != nil {
			wires = append(wires, row.Doc)
		}
	}
	return fromWireList(wires)
}

// Changes reads the change feed after the given checkpoint, documents
// included. It returns the new checkpoint alongside the changed docs.
func (c *Client) Changes(ctx context.Context, since string) ([]docstore.Document, string, error) {
	if since == "" {
		since = "0"
	}
	endpoint := fmt.Sprintf("%s?include_docs=true&since=%s", c.dbURL("_changes"), url.QueryEscape(since))

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, since, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, since, c.statusError(resp, "reading remote changes")
	}

	var result struct {
		Results []struct {
			Doc map[string]json.RawMessage `json:"doc"`
		} `json:"results"`
		LastSeq json.RawMessage `json:"last_seq"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, since, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding changes response")
	}

	wires := make([]map[string]json.RawMessage, 0, len(result.Results))
	for _, row := range result.Results {
		if row.Doc != nil {
			wires = append(wires, row.Doc)
		}
	}
	docs, err := fromWireList(wires)
	if err != nil {
		return nil, since, err
	}

	last := decodeSeq(result.LastSeq, since)
	return docs, last, nil
}

// EnsureIndexes asserts the (type) and (type, status) indexes remotely.
// The endpoint treats index creation as idempotent.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	indexes := []map[string]any{
		{"index": map[string]any{"fields": []string{"type"}}, "name": "idx-type", "ddoc": "idx-type"},
		{"index": map[string]any{"fields": []string{"type", "status"}}, "name": "idx-type-status", "ddoc": "idx-type-status"},
	}
	for _, idx := range indexes {
		body, err := json.Marshal(idx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding index definition")
		}
		resp, err := c.do(ctx, http.MethodPost, c.dbURL("_index"), bytes.NewReader(body))
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("index creation returned status %d", resp.StatusCode))
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building remote request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConnectivity, err, "remote store unreachable")
	}
	return resp, nil
}

func (c *Client) statusError(resp *http.Response, msg string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	detail := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))

	var code pkgerrors.Code
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		code = pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		code = pkgerrors.CodeForbidden
	case http.StatusNotFound:
		code = pkgerrors.CodeNotFound
	case http.StatusConflict:
		code = pkgerrors.CodeConflict
	default:
		code = pkgerrors.CodeDependency
	}
	return pkgerrors.Wrap(code, detail, msg)
}

func (c *Client) dbURL(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.database), suffix)
}

func (c *Client) docURL(id string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.database), url.PathEscape(id))
}

func toWire(doc docstore.Document) ([]byte, error) {
	wire := map[string]any{}
	if len(doc.Body) > 0 {
		if err := json.Unmarshal(doc.Body, &wire); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "document body is not an object")
		}
	}
	wire["_id"] = doc.ID
	if doc.Rev != "" {
		wire["_rev"] = doc.Rev
	}
	wire["type"] = doc.Type.String()
	if doc.Status != "" {
		wire["status"] = doc.Status
	}
	if doc.Deleted {
		wire["_deleted"] = true
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding wire document")
	}
	return payload, nil
}

func fromWire(wire map[string]json.RawMessage) (*docstore.Document, error) {
	doc := &docstore.Document{}
	if err := unmarshalField(wire, "_id", &doc.ID); err != nil {
		return nil, err
	}
	if err := unmarshalField(wire, "_rev", &doc.Rev); err != nil {
		return nil, err
	}

	var docType string
	if err := unmarshalField(wire, "type", &docType); err != nil {
		return nil, err
	}
	doc.Type = enums.DocType(docType)

	var status string
	if err := unmarshalField(wire, "status", &status); err != nil {
		return nil, err
	}
	doc.Status = status

	if raw, ok := wire["_deleted"]; ok {
		_ = json.Unmarshal(raw, &doc.Deleted)
	}

	body := make(map[string]json.RawMessage, len(wire))
	for key, value := range wire {
		if key == "_id" || key == "_rev" || key == "_deleted" {
			continue
		}
		body[key] = value
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "re-encoding document body")
	}
	doc.Body = encoded
	return doc, nil
}

func fromWireList(wires []map[string]json.RawMessage) ([]docstore.Document, error) {
	docs := make([]docstore.Document, 0, len(wires))
	for _, wire := range wires {
		doc, err := fromWire(wire)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func unmarshalField(wire map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := wire[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding field "+key)
	}
	return nil
}

func decodeSeq(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}
	return fallback
}
