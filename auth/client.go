// Package auth establishes and manages sessions with the social-graph
// service.
//
// A login is a challenge/verify exchange: the client requests a challenge
// scoped to the target account and application, signs it with the caller's
// wallet signer, and exchanges the signature for session tokens. The client
// is the single owner of the cached session; Resume and Invalidate are the
// only operations that touch it.
package auth

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/beaconlabs/beacon-sdk/signer"
)

// Client talks to the social-graph authentication endpoints.
type Client struct {
	baseURL    string
	app        string
	store      Store
	httpClient *http.Client
}

// Config holds configuration for the auth Client.
type Config struct {
	// BaseURL is the social-graph API endpoint. Required.
	BaseURL string
	// App is the application address login challenges are scoped to. Required.
	App string
	// Store persists sessions for resumption. Defaults to a MemoryStore.
	Store Store
	// HTTPClient overrides the default HTTP client (10s timeout).
	HTTPClient *http.Client
}

// NewClient creates a new authentication client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if !common.IsHexAddress(cfg.App) {
		return nil, fmt.Errorf("app address is required")
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		app:        cfg.App,
		store:      store,
		httpClient: httpClient,
	}, nil
}

// LoginRequest describes one login attempt. Use AccountOwner or
// OnboardingUser to construct it.
type LoginRequest struct {
	// Account is the account address to act as. Empty for onboarding logins.
	Account string
	// Owner is the wallet address that owns the account.
	Owner string
	// Signer produces the challenge signature. Required.
	Signer signer.Signer
}

// AccountOwner builds a login request acting as an existing account owned by
// the signer's wallet.
func AccountOwner(account string, s signer.Signer) LoginRequest {
	return LoginRequest{Account: account, Owner: s.Address(), Signer: s}
}

// OnboardingUser builds a login request for a wallet that has no account yet,
// used during account creation.
func OnboardingUser(s signer.Signer) LoginRequest {
	return LoginRequest{Owner: s.Address(), Signer: s}
}

type challengeRequest struct {
	App     string `json:"app"`
	Account string `json:"account,omitempty"`
	Owner   string `json:"owner"`
}

type challengeResponse struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type verifyRequest struct {
	ID        string `json:"id"`
	Signature string `json:"signature"`
}

// Login authenticates the caller and caches the resulting session.
//
// No retry is attempted: a rejected signature, a rejected challenge, or an
// unreachable endpoint all surface as *AuthError and the caller decides
// whether to try again.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	if req.Signer == nil {
		return nil, &AuthError{Op: "login", Err: fmt.Errorf("signer is required")}
	}
	if req.Owner == "" {
		return nil, &AuthError{Op: "login", Err: fmt.Errorf("owner address is required")}
	}

	var challenge challengeResponse
	err := c.post(ctx, "/authentication/challenge", "", challengeRequest{
		App:     c.app,
		Account: req.Account,
		Owner:   req.Owner,
	}, &challenge)
	if err != nil {
		return nil, &AuthError{Op: "challenge", Err: err}
	}

	sig, err := req.Signer.SignMessage([]byte(challenge.Text))
	if err != nil {
		return nil, &AuthError{Op: "sign", Err: err}
	}

	var session Session
	err = c.post(ctx, "/authentication/verify", "", verifyRequest{
		ID:        challenge.ID,
		Signature: "0x" + hex.EncodeToString(sig),
	}, &session)
	if err != nil {
		return nil, &AuthError{Op: "verify", Err: err}
	}
	if session.Account == "" {
		session.Account = req.Account
	}

	if err := c.store.Save(&session); err != nil {
		return nil, &AuthError{Op: "store", Err: err}
	}
	return &session, nil
}

// CurrentSession returns the cached session without refreshing it, or nil
// when none is stored. An expired session is returned as-is; use Resume to
// refresh it.
func (c *Client) CurrentSession() (*Session, error) {
	session, err := c.store.Load()
	if err != nil {
		return nil, &AuthError{Op: "current session", Err: err}
	}
	return session, nil
}

// Resume returns the cached session, refreshing the access token if it has
// expired. Returns an *AuthError if no session is cached or the refresh is
// rejected.
func (c *Client) Resume(ctx context.Context) (*Session, error) {
	session, err := c.store.Load()
	if err != nil {
		return nil, &AuthError{Op: "resume", Err: err}
	}
	if session == nil {
		return nil, &AuthError{Op: "resume", Err: fmt.Errorf("no session to resume")}
	}
	if !session.Expired() {
		return session, nil
	}

	var refreshed Session
	err = c.post(ctx, "/authentication/refresh", "", map[string]string{
		"refreshToken": session.RefreshToken,
	}, &refreshed)
	if err != nil {
		return nil, &AuthError{Op: "refresh", Err: err}
	}
	if refreshed.Account == "" {
		refreshed.Account = session.Account
	}
	if err := c.store.Save(&refreshed); err != nil {
		return nil, &AuthError{Op: "store", Err: err}
	}
	return &refreshed, nil
}

// Invalidate revokes the session server-side and clears the cached copy.
//
// The store is cleared even when revocation fails, so a half-revoked session
// is never resumed.
func (c *Client) Invalidate(ctx context.Context, session *Session) error {
	if session == nil {
		return &AuthError{Op: "invalidate", Err: fmt.Errorf("session is required")}
	}

	revokeErr := c.post(ctx, "/authentication/revoke", session.AccessToken, map[string]string{
		"authenticationId": session.AuthenticationID,
	}, nil)

	if err := c.store.Clear(); err != nil {
		return &AuthError{Op: "invalidate", Err: err}
	}
	if revokeErr != nil {
		return &AuthError{Op: "revoke", Err: revokeErr}
	}
	return nil
}

// post sends a JSON request to the given authentication endpoint and decodes
// the JSON response into out, if out is non-nil.
func (c *Client) post(ctx context.Context, path, token string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call authentication endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authentication endpoint returned %s: %s", resp.Status, bytes.TrimSpace(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response JSON: %w", err)
		}
	}
	return nil
}

// AuthError reports a failed login, refresh, or revocation. Op names the step
// that failed.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
