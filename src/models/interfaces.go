package models

import (
	"context"
)

// DocStore is the persistence contract the services write their state
// documents through. Implementations degrade read failures to "absent"
// rather than surfacing them.
type DocStore interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// RPCHandler services one registered rpc() name.
type RPCHandler func(ctx context.Context, params map[string]any) (any, error)
