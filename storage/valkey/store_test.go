package valkey

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/quiestce/quiestce/instrumentation"
	"github.com/quiestce/quiestce/internal/testutil"
	"github.com/quiestce/quiestce/security"
	"github.com/quiestce/quiestce/storage"
)

// testStore connects to VALKEY_TEST_ADDR when it is set and to an in-process
// miniredis otherwise. The returned miniredis is nil for a real server.
func testStore(t *testing.T, mutate func(*Config)) (*Store, *miniredis.Miniredis) {
	t.Helper()

	cfg := Config{
		KeyPrefix: fmt.Sprintf("quiestce-test:%s:", t.Name()),
	}

	var mr *miniredis.Miniredis
	if addr := os.Getenv("VALKEY_TEST_ADDR"); addr != "" {
		cfg.Address = addr
	} else {
		mr = miniredis.RunT(t)
		cfg.Address = mr.Addr()
		cfg.DisableClientCache = true
	}
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return store, mr
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestConnect_GivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := Connect(ctx, Config{
		Address:            "127.0.0.1:1",
		ConnectAttempts:    2,
		DisableClientCache: true,
	})
	assert.Error(t, err)
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{Address: "localhost:6379"}
	cfg.applyDefaults()

	assert.Equal(t, DefaultKeyPrefix, cfg.KeyPrefix)
	assert.Equal(t, DefaultTTL, cfg.PendingTTL)
	assert.Equal(t, DefaultTTL, cfg.GrantTTL)
	assert.Equal(t, uint(DefaultConnectAttempts), cfg.ConnectAttempts)
	assert.NotNil(t, cfg.Logger)
}

func TestStore_Pending(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t, nil)

	req := testutil.NewAuthorizationRequest("state-1", "challenge-1")
	require.NoError(t, store.PutPending(ctx, req))

	got, err := store.TakePending(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, req, got)

	_, err = store.TakePending(ctx, "state-1")
	assert.ErrorIs(t, err, storage.ErrPendingNotFound)
}

func TestStore_Grants(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t, nil)

	grant := testutil.NewAuthorizationGrant("challenge-1", testutil.Alice.ID.String())
	require.NoError(t, store.PutGrant(ctx, grant))

	got, err := store.TakeGrant(ctx, "challenge-1")
	require.NoError(t, err)
	assert.Equal(t, grant.IdentityID, got.IdentityID)
	assert.Equal(t, grant.RedirectURI, got.RedirectURI)
	assert.True(t, grant.CreatedAt.Equal(got.CreatedAt))

	_, err = store.TakeGrant(ctx, "challenge-1")
	assert.ErrorIs(t, err, storage.ErrGrantNotFound)
}

func TestStore_KeyLayoutAndTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := testStore(t, func(c *Config) {
		c.KeyPrefix = "quiestce:"
		c.PendingTTL = 90 * time.Second
		c.GrantTTL = 30 * time.Second
	})
	if mr == nil {
		t.Skip("key inspection needs miniredis")
	}

	require.NoError(t, store.PutPending(ctx, testutil.NewAuthorizationRequest("xyz", "abc")))
	require.NoError(t, store.PutGrant(ctx, testutil.NewAuthorizationGrant("abc", "id")))

	assert.True(t, mr.Exists("quiestce:pending:xyz"))
	assert.True(t, mr.Exists("quiestce:grant:abc"))
	assert.Equal(t, 90*time.Second, mr.TTL("quiestce:pending:xyz"))
	assert.Equal(t, 30*time.Second, mr.TTL("quiestce:grant:abc"))
}

func TestStore_SubSecondTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := testStore(t, func(c *Config) {
		c.PendingTTL = 1500 * time.Millisecond
	})
	if mr == nil {
		t.Skip("key inspection needs miniredis")
	}

	require.NoError(t, store.PutPending(ctx, testutil.NewAuthorizationRequest("xyz", "abc")))
	assert.Equal(t, 1500*time.Millisecond, mr.TTL(store.pendingKey("xyz")))

	mr.FastForward(time.Second)
	_, err := store.TakePending(ctx, "xyz")
	require.NoError(t, err, "entry should outlive a whole-second truncation of its TTL")
}

func TestStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, mr := testStore(t, nil)
	if mr == nil {
		t.Skip("fast-forwarding time needs miniredis")
	}

	require.NoError(t, store.PutPending(ctx, testutil.NewAuthorizationRequest("state-1", "c1")))
	require.NoError(t, store.PutGrant(ctx, testutil.NewAuthorizationGrant("c2", "id")))

	mr.FastForward(DefaultTTL + time.Second)

	_, err := store.TakePending(ctx, "state-1")
	assert.ErrorIs(t, err, storage.ErrPendingNotFound)
	_, err = store.TakeGrant(ctx, "c2")
	assert.ErrorIs(t, err, storage.ErrGrantNotFound)
}

func TestStore_Encrypted(t *testing.T) {
	ctx := context.Background()
	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)

	store, mr := testStore(t, func(c *Config) { c.Encryptor = enc })

	grant := testutil.NewAuthorizationGrant("challenge-1", testutil.Bob.ID.String())
	require.NoError(t, store.PutGrant(ctx, grant))

	if mr != nil {
		raw, err := mr.Get(store.grantKey("challenge-1"))
		require.NoError(t, err)
		assert.NotContains(t, raw, testutil.Bob.ID.String(), "payload should be encrypted at rest")
	}

	got, err := store.TakeGrant(ctx, "challenge-1")
	require.NoError(t, err)
	assert.Equal(t, grant.IdentityID, got.IdentityID)
}

func TestStore_EncryptedPayloadBoundToKey(t *testing.T) {
	ctx := context.Background()
	key, _ := security.GenerateKey()
	enc, _ := security.NewEncryptor(key)

	store, mr := testStore(t, func(c *Config) { c.Encryptor = enc })
	if mr == nil {
		t.Skip("raw key manipulation needs miniredis")
	}

	require.NoError(t, store.PutGrant(ctx, testutil.NewAuthorizationGrant("real", "id")))
	raw, err := mr.Get(store.grantKey("real"))
	require.NoError(t, err)
	require.NoError(t, mr.Set(store.grantKey("copied"), raw))

	_, err = store.TakeGrant(ctx, "copied")
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrGrantNotFound))
}

func TestStore_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	store, mr := testStore(t, nil)
	if mr == nil {
		t.Skip("raw key manipulation needs miniredis")
	}

	require.NoError(t, mr.Set(store.pendingKey("bad"), "{not json"))

	_, err := store.TakePending(ctx, "bad")
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrPendingNotFound))
}

func TestStore_ConcurrentTakeGrant(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t, nil)

	require.NoError(t, store.PutGrant(ctx, testutil.NewAuthorizationGrant("shared", "id")))

	const workers = 20
	var hits atomic.Int64
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := store.TakeGrant(ctx, "shared")
			if err == nil {
				hits.Add(1)
				return nil
			}
			if errors.Is(err, storage.ErrGrantNotFound) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(1), hits.Load())
}

func TestStore_SetInstrumentation(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t, nil)

	inst, err := instrumentation.New(instrumentation.Config{Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })
	store.SetInstrumentation(inst)

	require.NoError(t, store.PutPending(ctx, testutil.NewAuthorizationRequest("s", "c")))
	_, err = store.TakePending(ctx, "s")
	require.NoError(t, err)
}
