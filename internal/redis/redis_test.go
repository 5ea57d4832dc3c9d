package redis

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

var testRedisURL string

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	code := m.Run()

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func setupTestClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client, err := NewClient(testRedisURL)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.rdb.FlushAll(ctx).Err())

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("not-a-url")
	assert.Error(t, err)
}

func TestDocumentStore_LoadMissing(t *testing.T) {
	store := NewDocumentStore(setupTestClient(t), "")

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoDocument)
}

func TestDocumentStore_RoundTrip(t *testing.T) {
	client := setupTestClient(t)
	store := NewDocumentStore(client, "test:state")
	ctx := context.Background()

	doc := []byte(`{"streamers":["Alice"]}`)
	require.NoError(t, store.Save(ctx, doc))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, string(doc), string(got))

	ttl, err := client.rdb.TTL(ctx, "test:state").Result()
	require.NoError(t, err)
	assert.Less(t, ttl, time.Duration(0), "document key must not expire")
}

func TestDocumentStore_Name(t *testing.T) {
	assert.Equal(t, "redis", (&DocumentStore{}).Name())
}

func TestClient_Ping(t *testing.T) {
	client := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}
