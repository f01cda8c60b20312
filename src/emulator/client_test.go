package emulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeapps/localbase/src/config"
	"github.com/forgeapps/localbase/src/models"
	"github.com/forgeapps/localbase/src/realtime"
	"github.com/forgeapps/localbase/src/storage"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.Instant()
	cfg.Persistence.KeyPrefix = "test"
	client, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNew_EmbeddedBackend(t *testing.T) {
	client := newTestClient(t)
	require.NotNil(t, client.Auth)
	require.NotNil(t, client.Storage)

	rows, err := client.From("todos").Insert(models.Row{"title": "hello"}).Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0]["id"])
}

func TestRPC_UnregisteredFunction(t *testing.T) {
	client := newTestClient(t)

	_, err := client.RPC(context.Background(), "get_stats", nil)
	require.Error(t, err)
	assert.Equal(t, "RPC function 'get_stats' not implemented in mock", err.Error())
}

func TestRPC_RegisteredHandler(t *testing.T) {
	client := newTestClient(t)
	client.RegisterRPCHandler("add", func(ctx context.Context, params map[string]any) (any, error) {
		return params["a"].(int) + params["b"].(int), nil
	})

	result, err := client.RPC(context.Background(), "add", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, 3, result)

	// nil removes the handler
	client.RegisterRPCHandler("add", nil)
	_, err = client.RPC(context.Background(), "add", nil)
	assert.Error(t, err)
}

func TestSimulateError_AllKinds(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	client.SimulateError("auth", "signUp", assert.AnError)
	_, err := client.Auth.SignUp(ctx, "a@example.com", "password", nil)
	assert.ErrorIs(t, err, assert.AnError)
	client.SimulateError("auth", "signUp", nil)

	client.SimulateError("db", "select", assert.AnError)
	_, err = client.From("todos").Select().Execute(ctx)
	assert.ErrorIs(t, err, assert.AnError)
	client.SimulateError("database", "select", nil)
	_, err = client.From("todos").Select().Execute(ctx)
	assert.NoError(t, err)

	client.SimulateError("storage", "upload", assert.AnError)
	_, err = client.Storage.Bucket("b").Upload(ctx, "f.txt", []byte("x"), storage.UploadOptions{})
	assert.ErrorIs(t, err, assert.AnError)

	client.SimulateError("rpc", "fn", assert.AnError)
	client.RegisterRPCHandler("fn", func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	})
	_, err = client.RPC(ctx, "fn", nil)
	assert.ErrorIs(t, err, assert.AnError)
	client.SimulateError("rpc", "fn", nil)
	result, err := client.RPC(ctx, "fn", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	client.SimulateError("realtime", "subscribe", assert.AnError)
	statuses := make(chan string, 1)
	client.Channel("room").Subscribe(func(status string, err error) {
		statuses <- status
	})
	select {
	case status := <-statuses:
		assert.Equal(t, realtime.StatusChannelError, status)
	case <-time.After(time.Second):
		t.Fatal("subscribe status never arrived")
	}
}

func TestDeleteUser_Cascade(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	result, err := client.Auth.SignUp(ctx, "owner@example.com", "password", nil)
	require.NoError(t, err)
	userID := result.User.ID

	client.SeedTable(ctx, "todos", []models.Row{
		{"id": "t1", "user_id": userID, "title": "mine"},
		{"id": "t2", "user_id": "someone-else", "title": "theirs"},
	})
	_, err = client.Storage.Bucket("avatars").Upload(ctx, userID+"/pic.png", []byte("img"), storage.UploadOptions{})
	require.NoError(t, err)
	_, err = client.Storage.Bucket("avatars").Upload(ctx, "other/pic.png", []byte("img"), storage.UploadOptions{})
	require.NoError(t, err)

	client.DeleteUser(ctx, userID)

	assert.Nil(t, client.Auth.GetUser(ctx))
	assert.Nil(t, client.GetCurrentSession())

	rows := client.GetTableData("todos")
	require.Len(t, rows, 1)
	assert.Equal(t, "t2", rows[0]["id"])

	_, err = client.Storage.Bucket("avatars").Download(ctx, userID+"/pic.png")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	_, err = client.Storage.Bucket("avatars").Download(ctx, "other/pic.png")
	assert.NoError(t, err)

	// signing back in must fail: the credential is gone too
	_, err = client.Auth.SignInWithPassword(ctx, "owner@example.com", "password")
	assert.Error(t, err)
}

func TestClearAll(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Auth.SignUp(ctx, "a@example.com", "password", nil)
	require.NoError(t, err)
	client.SeedTable(ctx, "todos", []models.Row{{"id": "t1"}})
	_, err = client.Storage.Bucket("b").Upload(ctx, "f.txt", []byte("x"), storage.UploadOptions{})
	require.NoError(t, err)
	client.RegisterRPCHandler("fn", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	})

	require.NoError(t, client.ClearAll(ctx))

	assert.Nil(t, client.GetCurrentSession())
	assert.Empty(t, client.GetTableData("todos"))
	_, err = client.Storage.Bucket("b").Download(ctx, "f.txt")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	_, err = client.RPC(ctx, "fn", nil)
	assert.Error(t, err)

	// still usable after the wipe
	_, err = client.Auth.SignUp(ctx, "b@example.com", "password", nil)
	assert.NoError(t, err)
}

func TestSeedAndSnapshot(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	client.SeedTable(ctx, "items", []models.Row{{"id": "a"}, {"id": "b"}})

	rows := client.GetTableData("items")
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["id"])

	// snapshots are copies, mutations must not leak back
	rows[0]["id"] = "mutated"
	assert.Equal(t, "a", client.GetTableData("items")[0]["id"])
}

func TestTriggerRealtimeEvent_ThroughFacade(t *testing.T) {
	client := newTestClient(t)

	var mu sync.Mutex
	var got []models.TableChangePayload
	client.Channel("changes").OnTableChange(realtime.TableChangeFilter{
		Event: models.EventInsert,
		Table: "todos",
	}, func(p models.TableChangePayload) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	client.TriggerRealtimeEvent("todos", models.EventInsert, models.Row{"id": "x"}, nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, models.Row{"id": "x"}, got[0].New)
	assert.Nil(t, got[0].Old)
}

func TestGetCurrentSession_SkipsExpiryCheck(t *testing.T) {
	current := time.Now()
	cfg := config.Instant()
	cfg.Auth.SessionTTL = time.Minute

	client, err := New(cfg, WithClock(func() time.Time { return current }))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	_, err = client.Auth.SignUp(context.Background(), "a@example.com", "password", nil)
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)

	// raw accessor still reports the stale session; the validated path clears it
	assert.NotNil(t, client.GetCurrentSession())
	assert.Nil(t, client.Auth.GetSession(context.Background()))
	assert.Nil(t, client.GetCurrentSession())
}
