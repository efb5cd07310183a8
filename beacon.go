// Package beacon is the client SDK for the Beacon social protocol.
//
// It bundles the four collaborators every submission needs — session
// authentication, content-addressed storage, the social-graph API, and a
// wallet signer — behind one Client, and exposes the app-level operations
// (posts, beacons, beams, profiles) on top of a single shared submission
// workflow.
package beacon

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/beaconlabs/beacon-sdk/auth"
	"github.com/beaconlabs/beacon-sdk/graph"
	"github.com/beaconlabs/beacon-sdk/signer"
	"github.com/beaconlabs/beacon-sdk/storage"
	"github.com/beaconlabs/beacon-sdk/workflow"
)

// Default configuration for the public testnet deployment.
//
// These values can be overridden with options when creating a Client.
const (
	// DefaultAPIURL is the social-graph API endpoint.
	DefaultAPIURL = "https://api.testnet.beacon.social"
	// DefaultStorageURL is the storage node endpoint.
	DefaultStorageURL = "https://storage.testnet.beacon.social"
	// DefaultAppAddress is the application address login challenges are
	// scoped to.
	DefaultAppAddress = "0xe5439696f4057aF073c0FB2dc6e5e755392922e1"
)

// Config holds the assembled client configuration.
type Config struct {
	// APIURL is the social-graph API endpoint.
	APIURL string
	// StorageURL is the storage node endpoint.
	StorageURL string
	// GatewayURL is the public read gateway for content URIs.
	// Defaults to StorageURL.
	GatewayURL string
	// App is the application address login challenges are scoped to.
	App string
	// ConfirmTimeout bounds the wait for indexing confirmation.
	ConfirmTimeout time.Duration
	// Store persists sessions for resumption across restarts.
	Store auth.Store
	// Logger receives workflow stage transitions. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Option overrides one piece of the default configuration.
type Option func(*Config)

// WithAPIURL sets the social-graph API endpoint.
func WithAPIURL(u string) Option {
	return func(c *Config) { c.APIURL = u }
}

// WithStorageURL sets the storage node endpoint.
func WithStorageURL(u string) Option {
	return func(c *Config) { c.StorageURL = u }
}

// WithGatewayURL sets the public read gateway for content URIs.
func WithGatewayURL(u string) Option {
	return func(c *Config) { c.GatewayURL = u }
}

// WithApp sets the application address login challenges are scoped to.
func WithApp(app string) Option {
	return func(c *Config) { c.App = app }
}

// WithConfirmTimeout bounds the wait for indexing confirmation.
// Defaults to workflow.DefaultConfirmTimeout.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConfirmTimeout = d }
}

// WithSessionStore sets the session store used for login persistence.
func WithSessionStore(s auth.Store) Option {
	return func(c *Config) { c.Store = s }
}

// WithLogger sets the logger for workflow stage transitions.
func WithLogger(log *zap.Logger) Option {
	return func(c *Config) { c.Logger = log }
}

// Client is the assembled SDK client.
//
// The Auth, Storage, and Graph clients are exported for callers that need
// the lower-level calls (feeds, account listings, session management); the
// content operations in operations.go all go through the shared workflow.
type Client struct {
	Auth    *auth.Client
	Storage *storage.Client
	Graph   *graph.Client

	cfg    Config
	signer signer.Signer
	flow   *workflow.Workflow
}

// New assembles a Client around a wallet signer and transaction sender.
//
// A *signer.LocalSigner satisfies both parameters; callers integrating an
// external wallet supply their own implementations.
func New(s signer.Signer, sender signer.TransactionSender, opts ...Option) (*Client, error) {
	if s == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("transaction sender is required")
	}

	cfg := Config{
		APIURL:         DefaultAPIURL,
		StorageURL:     DefaultStorageURL,
		App:            DefaultAppAddress,
		ConfirmTimeout: workflow.DefaultConfirmTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	authClient, err := auth.NewClient(auth.Config{
		BaseURL: cfg.APIURL,
		App:     cfg.App,
		Store:   cfg.Store,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth client: %w", err)
	}

	storageClient, err := storage.NewClient(storage.Config{
		BaseURL:    cfg.StorageURL,
		GatewayURL: cfg.GatewayURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage client: %w", err)
	}

	graphClient, err := graph.NewClient(graph.Config{
		BaseURL: cfg.APIURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize graph client: %w", err)
	}

	flow, err := workflow.New(authClient, storageClient, graphClient, sender,
		workflow.WithConfirmTimeout(cfg.ConfirmTimeout),
		workflow.WithLogger(cfg.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize workflow: %w", err)
	}

	return &Client{
		Auth:    authClient,
		Storage: storageClient,
		Graph:   graphClient,
		cfg:     cfg,
		signer:  s,
		flow:    flow,
	}, nil
}
