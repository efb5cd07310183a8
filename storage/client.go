// Package storage uploads content to the protocol's content-addressed
// storage node and resolves the resulting URIs to gateway URLs.
package storage

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

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// URIScheme is the scheme of content URIs minted by the storage node.
const URIScheme = "beacon://"

// File is a binary attachment to upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Resource is the locator returned by a successful upload.
type Resource struct {
	URI string `json:"uri"`
}

// Client talks to the storage node upload endpoints.
type Client struct {
	baseURL    string
	gatewayURL string
	httpClient *http.Client
}

// Config holds configuration for the storage Client.
type Config struct {
	// BaseURL is the storage node endpoint. Required.
	BaseURL string
	// GatewayURL is the public read gateway used by ResolveURI.
	// Defaults to BaseURL.
	GatewayURL string
	// HTTPClient overrides the default HTTP client (30s timeout, uploads can
	// carry media).
	HTTPClient *http.Client
}

// NewClient creates a new storage client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	gateway := cfg.GatewayURL
	if gateway == "" {
		gateway = cfg.BaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		gatewayURL: strings.TrimSuffix(gateway, "/"),
		httpClient: httpClient,
	}, nil
}

type uploadOptions struct {
	acl *accessControl
}

type accessControl struct {
	Template string `json:"template"`
	Account  string `json:"account"`
}

// UploadOption configures a single upload.
type UploadOption func(*uploadOptions) error

// WithAccountACL restricts mutation of the uploaded resource to the given
// account address.
func WithAccountACL(account string) UploadOption {
	return func(o *uploadOptions) error {
		if !common.IsHexAddress(account) {
			return fmt.Errorf("invalid account address %q", account)
		}
		o.acl = &accessControl{Template: "account_only", Account: strings.ToLower(account)}
		return nil
	}
}

// UploadFile uploads a single file and returns its content URI.
func (c *Client) UploadFile(ctx context.Context, file *File, opts ...UploadOption) (*Resource, error) {
	if file == nil || len(file.Data) == 0 {
		return nil, &UploadError{Op: "upload file", Err: fmt.Errorf("file is empty")}
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	endpoint := c.baseURL + "/uploads"
	if file.Name != "" {
		endpoint += "?name=" + url.QueryEscape(file.Name)
	}
	resource, err := c.upload(ctx, endpoint, contentType, file.Data, opts)
	if err != nil {
		return nil, &UploadError{Op: "upload file", Err: err}
	}
	return resource, nil
}

// UploadJSON marshals the document and uploads it as a single JSON resource,
// returning its content URI.
func (c *Client) UploadJSON(ctx context.Context, doc interface{}, opts ...UploadOption) (*Resource, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, &UploadError{Op: "upload json", Err: fmt.Errorf("failed to marshal document: %w", err)}
	}
	resource, err := c.upload(ctx, c.baseURL+"/uploads", "application/json", payload, opts)
	if err != nil {
		return nil, &UploadError{Op: "upload json", Err: err}
	}
	return resource, nil
}

func (c *Client) upload(ctx context.Context, endpoint, contentType string, body []byte, opts []UploadOption) (*Resource, error) {
	var options uploadOptions
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	// Idempotency key lets the node deduplicate a retried upload.
	req.Header.Set("Idempotency-Key", uuid.NewString())
	if options.acl != nil {
		aclJSON, err := json.Marshal(options.acl)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ACL: %w", err)
		}
		req.Header.Set("X-Access-Control", string(aclJSON))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call storage node: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("storage node returned %s: %s", resp.Status, bytes.TrimSpace(respBody))
	}

	var resource Resource
	if err := json.Unmarshal(respBody, &resource); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upload response: %w", err)
	}
	if resource.URI == "" {
		return nil, fmt.Errorf("storage node returned no URI")
	}
	return &resource, nil
}

// ResolveURI rewrites a content URI to a fetchable gateway URL. URIs that do
// not use the storage scheme are returned unchanged.
func (c *Client) ResolveURI(uri string) string {
	if !strings.HasPrefix(uri, URIScheme) {
		return uri
	}
	hash := strings.TrimPrefix(uri, URIScheme)
	return c.gatewayURL + "/content/" + hash
}

// UploadError reports a failed upload with the underlying cause preserved.
type UploadError struct {
	Op  string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
