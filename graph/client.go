// Package graph is the client for the social-graph service: publishing
// content, managing accounts, querying feeds, and waiting for transaction
// indexing.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beaconlabs/beacon-sdk/auth"
)

// DefaultPollInterval is the delay between indexing-status polls.
const DefaultPollInterval = 2 * time.Second

// Client talks to the social-graph API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// Config holds configuration for the graph Client.
type Config struct {
	// BaseURL is the social-graph API endpoint. Required.
	BaseURL string
	// PollInterval is the delay between indexing-status polls.
	// Defaults to DefaultPollInterval.
	PollInterval time.Duration
	// HTTPClient overrides the default HTTP client (10s timeout).
	HTTPClient *http.Client
}

// NewClient creates a new social-graph client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		httpClient:   httpClient,
		pollInterval: interval,
	}, nil
}

// PostRequest describes one publish operation.
type PostRequest struct {
	// ContentURI locates the uploaded metadata document.
	ContentURI string `json:"contentUri"`
	// IdempotencyKey deduplicates a retried publish so a workflow that died
	// between broadcast and response cannot double-publish.
	IdempotencyKey string `json:"-"`
}

// Publish asks the service to publish the content at the given URI.
//
// A rejection (validation, quota, permission) is reported as *RequestError
// before any blockchain interaction. Otherwise the result is either
// finalized or carries raw transaction parameters for the caller to sign.
func (c *Client) Publish(ctx context.Context, session *auth.Session, req PostRequest) (*PublishResult, error) {
	if req.ContentURI == "" {
		return nil, &RequestError{Op: "publish", Err: fmt.Errorf("content URI is required")}
	}
	var result PublishResult
	if err := c.do(ctx, http.MethodPost, "/posts", session, req.IdempotencyKey, req, &result); err != nil {
		return nil, err
	}
	if !result.Finalized && result.Raw == nil {
		return nil, &RequestError{Op: "publish", Err: fmt.Errorf("response is neither finalized nor raw")}
	}
	return &result, nil
}

type setMetadataRequest struct {
	MetadataURI string `json:"metadataUri"`
}

// SetAccountMetadata updates the session account's profile document.
func (c *Client) SetAccountMetadata(ctx context.Context, session *auth.Session, metadataURI string) (*PublishResult, error) {
	if metadataURI == "" {
		return nil, &RequestError{Op: "set account metadata", Err: fmt.Errorf("metadata URI is required")}
	}
	var result PublishResult
	err := c.do(ctx, http.MethodPost, "/accounts/metadata", session, "", setMetadataRequest{MetadataURI: metadataURI}, &result)
	if err != nil {
		return nil, err
	}
	if !result.Finalized && result.Raw == nil {
		return nil, &RequestError{Op: "set account metadata", Err: fmt.Errorf("response is neither finalized nor raw")}
	}
	return &result, nil
}

type createAccountRequest struct {
	Username    usernameRequest `json:"username"`
	MetadataURI string          `json:"metadataUri"`
}

type usernameRequest struct {
	LocalName string `json:"localName"`
}

// CreateAccountWithUsername creates a new account bound to the session's
// wallet, claiming the given local name.
func (c *Client) CreateAccountWithUsername(ctx context.Context, session *auth.Session, localName, metadataURI string) (*PublishResult, error) {
	if localName == "" {
		return nil, &RequestError{Op: "create account", Err: fmt.Errorf("username is required")}
	}
	var result PublishResult
	err := c.do(ctx, http.MethodPost, "/accounts", session, "", createAccountRequest{
		Username:    usernameRequest{LocalName: localName},
		MetadataURI: metadataURI,
	}, &result)
	if err != nil {
		return nil, err
	}
	if !result.Finalized && result.Raw == nil {
		return nil, &RequestError{Op: "create account", Err: fmt.Errorf("response is neither finalized nor raw")}
	}
	return &result, nil
}

type txStatusResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Transaction status values reported by the indexer.
const (
	txStatusPending  = "PENDING"
	txStatusIndexed  = "INDEXED"
	txStatusRejected = "REJECTED"
)

// WaitForTransaction polls the indexer until the transaction is indexed,
// rejected, or ctx is done.
//
// An explicit rejection is reported as *IndexingError. The caller owns any
// deadline; this method polls for as long as ctx allows.
func (c *Client) WaitForTransaction(ctx context.Context, session *auth.Session, txHash string) error {
	if txHash == "" {
		return &RequestError{Op: "wait for transaction", Err: fmt.Errorf("transaction hash is required")}
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var status txStatusResponse
		err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(txHash)+"/status", session, "", nil, &status)
		if err != nil {
			return err
		}

		switch status.Status {
		case txStatusIndexed:
			return nil
		case txStatusRejected:
			return &IndexingError{TxHash: txHash, Reason: status.Reason}
		case txStatusPending, "":
			// keep polling
		default:
			return &RequestError{Op: "wait for transaction", Err: fmt.Errorf("unknown status %q", status.Status)}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// FetchAccount fetches a single account by address.
func (c *Client) FetchAccount(ctx context.Context, address string) (*Account, error) {
	if address == "" {
		return nil, &RequestError{Op: "fetch account", Err: fmt.Errorf("address is required")}
	}
	var account Account
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(address), nil, "", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

type accountsAvailableResponse struct {
	Items []struct {
		Account string `json:"account"`
	} `json:"items"`
}

// FetchAccountsAvailable lists the accounts managed by (and optionally owned
// by) a wallet, with each account's metadata hydrated in parallel.
func (c *Client) FetchAccountsAvailable(ctx context.Context, managedBy string, includeOwned bool) ([]*Account, error) {
	if managedBy == "" {
		return nil, &RequestError{Op: "fetch accounts", Err: fmt.Errorf("wallet address is required")}
	}

	query := url.Values{}
	query.Set("managedBy", managedBy)
	query.Set("includeOwned", strconv.FormatBool(includeOwned))

	var listing accountsAvailableResponse
	if err := c.do(ctx, http.MethodGet, "/accounts?"+query.Encode(), nil, "", nil, &listing); err != nil {
		return nil, err
	}

	accounts := make([]*Account, len(listing.Items))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, item := range listing.Items {
		group.Go(func() error {
			account, err := c.FetchAccount(groupCtx, item.Account)
			if err != nil {
				return err
			}
			accounts[i] = account
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// FetchPosts fetches one page of an author's posts. Pass the previous page's
// Next value as cursor, or empty for the first page.
func (c *Client) FetchPosts(ctx context.Context, author, cursor string) (*PostPage, error) {
	if author == "" {
		return nil, &RequestError{Op: "fetch posts", Err: fmt.Errorf("author is required")}
	}

	query := url.Values{}
	query.Set("author", author)
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var page PostPage
	if err := c.do(ctx, http.MethodGet, "/posts?"+query.Encode(), nil, "", nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// do sends one request to the graph API and decodes the JSON response into
// out, if out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, session *auth.Session, idempotencyKey string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Op: method + " " + path, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &RequestError{Op: method + " " + path, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != nil {
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: method + " " + path, Err: fmt.Errorf("failed to call graph API: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Op: method + " " + path, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return &RequestError{
			Op:         method + " " + path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("graph API returned %s: %s", resp.Status, bytes.TrimSpace(respBody)),
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &RequestError{Op: method + " " + path, Err: fmt.Errorf("failed to unmarshal response JSON: %w", err)}
		}
	}
	return nil
}

// RequestError reports a rejected or failed graph API call.
type RequestError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("graph %s failed: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IndexingError reports that the service explicitly rejected a broadcast
// transaction during indexing. This is distinct from a timeout: the final
// state is known, and it is a failure.
type IndexingError struct {
	TxHash string
	Reason string
}

func (e *IndexingError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s was rejected during indexing", e.TxHash)
	}
	return fmt.Sprintf("transaction %s was rejected during indexing: %s", e.TxHash, e.Reason)
}
