package remote

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"persistence-engine/internal/config"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/storage"
	"persistence-engine/internal/storage/kv"
	"persistence-engine/internal/testutil"
)

const bufSize = 1024 * 1024

type inventory struct {
	Gold  int      `json:"gold"`
	Items []string `json:"items"`
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Paths.Data = t.TempDir()
	cfg.Remote.Address = "passthrough:///bufnet"
	cfg.Remote.Timeout = 5 * time.Second
	return cfg
}

// setupRemote serves a memory-backed key-value provider over bufconn and
// returns an initialized Cloud provider connected to it.
func setupRemote(t *testing.T) (*Provider, storage.Provider) {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig(t)

	backing := kv.NewProvider(logging.Nop(), kv.WithBackend(kv.NewMemoryBackend()))
	require.Equal(t, storage.Success, backing.Initialize(ctx, cfg))
	t.Cleanup(func() { backing.Dispose(ctx) })

	lis := bufconn.Listen(bufSize)
	server := NewServer(backing, logging.Nop())
	server.Serve(lis)
	t.Cleanup(server.Stop)

	client := NewProvider(logging.Nop(), WithDialOptions(
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
	))
	require.Equal(t, storage.Success, client.Initialize(ctx, cfg))
	t.Cleanup(func() { client.Dispose(ctx) })

	return client, backing
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, backing := setupRemote(t)

	want := inventory{Gold: 250, Items: []string{"rope", "lantern"}}
	require.Equal(t, storage.Success, storage.SaveValue(ctx, client, nil, "inventory", want))

	got, r := storage.LoadValue[inventory](ctx, client, nil, "inventory")
	require.Equal(t, storage.Success, r)
	assert.Equal(t, want, got)

	exists, r := backing.Exists(ctx, "inventory")
	require.Equal(t, storage.Success, r)
	assert.True(t, exists, "value lands in the served provider")

	raw := []byte{0x00, 0xFF, 0x10}
	require.Equal(t, storage.Success, client.Save(ctx, "raw", raw))
	data, r := client.Load(ctx, "raw")
	require.Equal(t, storage.Success, r)
	assert.Equal(t, raw, data)
}

func TestResultsCrossTheWire(t *testing.T) {
	ctx := context.Background()
	client, _ := setupRemote(t)

	_, r := client.Load(ctx, "missing")
	assert.Equal(t, storage.NotFound, r)
	assert.Equal(t, storage.NotFound, client.Delete(ctx, "missing"))
	assert.Equal(t, storage.InvalidData, client.Save(ctx, kv.ManagedKeysEntry, []byte("x")), "reserved key rejected by the server")
}

func TestKeyManagement(t *testing.T) {
	ctx := context.Background()
	client, _ := setupRemote(t)

	for _, key := range []string{"b", "a"} {
		require.Equal(t, storage.Success, client.Save(ctx, key, []byte(key)))
	}
	keys, r := client.ListKeys(ctx)
	require.Equal(t, storage.Success, r)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.Equal(t, storage.Success, client.Delete(ctx, "a"))
	exists, r := client.Exists(ctx, "a")
	require.Equal(t, storage.Success, r)
	assert.False(t, exists)

	require.Equal(t, storage.Success, client.Clear(ctx))
	keys, _ = client.ListKeys(ctx)
	assert.Empty(t, keys)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	client, _ := setupRemote(t)

	require.Equal(t, storage.Success, client.Save(ctx, "a", []byte("12345")))
	stats, r := client.Statistics(ctx)
	require.Equal(t, storage.Success, r)
	assert.Equal(t, storage.Cloud, stats.Kind)
	assert.EqualValues(t, 1, stats.ItemCount)
	assert.EqualValues(t, 5, stats.TotalSizeBytes)
	assert.True(t, stats.Healthy)
}

func TestNotInitialized(t *testing.T) {
	p := NewProvider(nil)
	_, r := p.Load(context.Background(), "x")
	assert.Equal(t, storage.NotInitialized, r)
	assert.Equal(t, storage.NotInitialized, p.Clear(context.Background()))
}

func TestUnreachableServerIsNetworkError(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Remote.Timeout = 200 * time.Millisecond

	lis := bufconn.Listen(bufSize)
	require.NoError(t, lis.Close())

	p := NewProvider(nil, WithDialOptions(
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
	))
	require.Equal(t, storage.Success, p.Initialize(ctx, cfg))
	defer p.Dispose(ctx)

	assert.Equal(t, storage.NetworkError, p.Save(ctx, "k", []byte("v")))
	_, r := p.Load(ctx, "k")
	assert.Equal(t, storage.NetworkError, r)
}

func TestResultFromStatus(t *testing.T) {
	tests := map[codes.Code]storage.Result{
		codes.InvalidArgument:  storage.InvalidData,
		codes.NotFound:         storage.NotFound,
		codes.PermissionDenied: storage.Unauthorized,
		codes.Unimplemented:    storage.NotImplemented,
		codes.Unavailable:      storage.NetworkError,
		codes.DeadlineExceeded: storage.NetworkError,
		codes.Internal:         storage.Failed,
	}
	for code, want := range tests {
		if got := resultFromStatus(status.Error(code, "x")); got != want {
			t.Errorf("resultFromStatus(%s) = %s, want %s", code, got, want)
		}
	}
}

func TestMalformedPayloadIsInvalidArgument(t *testing.T) {
	ctx := context.Background()
	client, _ := setupRemote(t)

	bad := request("k")
	bad.Fields[fieldData] = structpb.NewStringValue("%%% not base64")
	_, r := client.call(ctx, methodSave, "k", bad)
	assert.Equal(t, storage.InvalidData, r)

	_, r = client.Load(ctx, "k")
	assert.Equal(t, storage.NotFound, r)
}

func TestProviderContract(t *testing.T) {
	client, _ := setupRemote(t)
	testutil.ProviderContract(t, client)
}

// idRecorder remembers the IDs each Save arrived with.
type idRecorder struct {
	storage.Provider
	correlationID string
	requestID     string
}

func (r *idRecorder) Save(ctx context.Context, key string, data []byte) storage.Result {
	r.correlationID = logging.ExtractCorrelationID(ctx)
	r.requestID = logging.ExtractRequestID(ctx)
	return r.Provider.Save(ctx, key, data)
}

func TestCorrelationIDsCrossTheWire(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	inner := kv.NewProvider(logging.Nop(), kv.WithBackend(kv.NewMemoryBackend()))
	require.Equal(t, storage.Success, inner.Initialize(ctx, cfg))
	defer inner.Dispose(ctx)
	backing := &idRecorder{Provider: inner}

	lis := bufconn.Listen(bufSize)
	server := NewServer(backing, logging.Nop())
	server.Serve(lis)
	defer server.Stop()

	client := NewProvider(logging.Nop(), WithDialOptions(
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
	))
	require.Equal(t, storage.Success, client.Initialize(ctx, cfg))
	defer client.Dispose(ctx)

	tagged := logging.ContextWithIDs(ctx, "cor_match", "req_match")
	require.Equal(t, storage.Success, client.Save(tagged, "slot", []byte(`1`)))
	assert.Equal(t, "cor_match", backing.correlationID)
	assert.Equal(t, "req_match", backing.requestID)

	require.Equal(t, storage.Success, client.Save(ctx, "slot", []byte(`2`)))
	assert.Contains(t, backing.correlationID, "cor_", "generated when the caller sent none")
	assert.NotEqual(t, "cor_match", backing.correlationID)
}
