// Package emulator composes the auth, query, storage and realtime services
// behind one client whose surface matches the shape of a real hosted-backend
// SDK, so application code stays provider-agnostic. The real-provider
// adapter satisfies the same surface; this one needs no credentials or
// network.
package emulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forgeapps/localbase/src/auth"
	"github.com/forgeapps/localbase/src/config"
	"github.com/forgeapps/localbase/src/kv"
	"github.com/forgeapps/localbase/src/models"
	"github.com/forgeapps/localbase/src/netsim"
	"github.com/forgeapps/localbase/src/query"
	"github.com/forgeapps/localbase/src/realtime"
	"github.com/forgeapps/localbase/src/storage"
)

// Client is one emulated backend instance. All state lives on the instance
// rather than in package globals, so separate clients never leak into each
// other; ClearAll gives tests a clean slate on a shared one.
type Client struct {
	Auth    *auth.Manager
	Storage *storage.Service

	cfg    *config.Config
	logger zerolog.Logger
	store  *kv.Store
	db     *query.Engine
	bus    *realtime.Bus
	delay  *netsim.Delay

	clock func() time.Time

	rpcMu       sync.Mutex
	rpcHandlers map[string]models.RPCHandler
	rpcFailures map[string]error
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock injects the auth clock, primarily for session-expiry tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.clock = now
	}
}

func New(cfg *config.Config, options ...Option) (*Client, error) {
	c := &Client{
		cfg:         cfg,
		logger:      zerolog.Nop(),
		rpcHandlers: make(map[string]models.RPCHandler),
		rpcFailures: make(map[string]error),
	}
	for _, opt := range options {
		opt(c)
	}

	store, err := kv.NewStore(&cfg.Persistence, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value store: %w", err)
	}
	c.store = store
	c.delay = netsim.NewDelay(&cfg.Latency)

	authOpts := []auth.Option{}
	if c.clock != nil {
		authOpts = append(authOpts, auth.WithNow(c.clock))
	}
	c.Auth = auth.NewManager(&cfg.Auth, store, c.delay, c.logger, authOpts...)
	c.db = query.NewEngine(store, c.delay, c.logger)
	c.Storage = storage.NewService(&cfg.Storage, store, c.delay, c.logger)
	c.bus = realtime.NewBus(&cfg.Realtime, c.logger)

	return c, nil
}

// From starts a query builder against the named table.
func (c *Client) From(table string) *query.Builder {
	return c.db.From(table)
}

// Compat exposes the Convex-flavored first-match table layer.
func (c *Client) Compat() *query.Compat {
	return c.db.Compat()
}

// Channel returns the named realtime channel.
func (c *Client) Channel(name string) *realtime.Channel {
	return c.bus.Channel(name)
}

// RPC dispatches to the pluggable handler registry.
func (c *Client) RPC(ctx context.Context, name string, params map[string]any) (any, error) {
	c.rpcMu.Lock()
	if err := c.rpcFailures[name]; err != nil {
		c.rpcMu.Unlock()
		return nil, err
	}
	handler, ok := c.rpcHandlers[name]
	c.rpcMu.Unlock()

	if !ok {
		return nil, fmt.Errorf("RPC function '%s' not implemented in mock", name)
	}

	c.delay.Wait(ctx)
	return handler(ctx, params)
}

// RegisterRPCHandler installs (or, with nil, removes) the handler for name.
func (c *Client) RegisterRPCHandler(name string, handler models.RPCHandler) {
	c.rpcMu.Lock()
	defer c.rpcMu.Unlock()
	if handler == nil {
		delete(c.rpcHandlers, name)
		return
	}
	c.rpcHandlers[name] = handler
}

// Close releases the key-value backend and stops background refresh.
func (c *Client) Close() error {
	c.Auth.StopAutoRefresh()
	return c.store.Close()
}
