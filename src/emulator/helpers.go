package emulator

import (
	"context"
	"fmt"

	"github.com/forgeapps/localbase/src/models"
)

// The helpers below are not part of the provider-compatible surface; they
// exist so tests can seed, inspect and reset the emulated backend.

// ClearAll wipes every service and all persisted documents. The client stays
// usable afterward — it behaves like a freshly provisioned backend.
func (c *Client) ClearAll(ctx context.Context) error {
	c.Auth.Reset()
	c.db.Reset()
	c.Storage.Reset()
	c.bus.Reset()

	c.rpcMu.Lock()
	c.rpcHandlers = make(map[string]models.RPCHandler)
	c.rpcFailures = make(map[string]error)
	c.rpcMu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear persisted state: %w", err)
	}
	return nil
}

// SeedTable inserts rows directly, without simulated latency.
func (c *Client) SeedTable(ctx context.Context, table string, rows []models.Row) {
	c.db.Seed(ctx, table, rows)
}

// GetTableData returns a deep copy of a table's rows in insertion order.
func (c *Client) GetTableData(table string) []models.Row {
	return c.db.Snapshot(table)
}

// GetCurrentSession returns the tracked session without expiry validation.
func (c *Client) GetCurrentSession() *models.Session {
	return c.Auth.CurrentSession()
}

// DeleteUser removes the user and cascades: table rows whose id or user_id
// equals the user id, stored objects under the user's path prefix, and the
// active session when it belongs to that user.
func (c *Client) DeleteUser(ctx context.Context, userID string) {
	rows := c.db.DeleteWhereOwner(ctx, userID)
	objects := c.Storage.RemoveOwnedBy(ctx, userID)
	c.Auth.DeleteUser(ctx, userID)

	c.logger.Debug().
		Str("user_id", userID).
		Int("rows", rows).
		Int("objects", objects).
		Msg("user deleted with cascade")
}

// TriggerRealtimeEvent simulates a server-pushed table change.
func (c *Client) TriggerRealtimeEvent(table string, event models.TableEvent, newRow, oldRow models.Row) {
	c.bus.Trigger(table, event, newRow, oldRow)
}

// SimulateError injects err for one operation of one service kind — "auth",
// "db", "storage", "realtime" or "rpc" — until cleared with a nil err.
func (c *Client) SimulateError(kind, operation string, err error) {
	switch kind {
	case "auth":
		c.Auth.SimulateError(operation, err)
	case "db", "database":
		c.db.SimulateError(operation, err)
	case "storage":
		c.Storage.SimulateError(operation, err)
	case "realtime":
		c.bus.SimulateError(operation, err)
	case "rpc":
		c.rpcMu.Lock()
		if err == nil {
			delete(c.rpcFailures, operation)
		} else {
			c.rpcFailures[operation] = err
		}
		c.rpcMu.Unlock()
	default:
		c.logger.Warn().Str("kind", kind).Msg("unknown error simulation kind")
	}
}
