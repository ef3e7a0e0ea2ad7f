package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"persistence-engine/internal/config"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/storage"
)

// TestConfig creates a test configuration rooted in a fresh temp directory
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Paths.Data = t.TempDir()
	cfg.KeyValue.Backend = "memory"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0 // Let the OS choose a free port for testing
	cfg.Logging.Output = "discard"
	return cfg
}

// TestLogger creates a test logger with minimal configuration
func TestLogger() *logging.Logger {
	testLogConfig := logging.TestLoggingConfig()
	return logging.NewLogger(&testLogConfig)
}

// GenerateRandomString generates a random string of given length
func GenerateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}

// GenerateRandomKey generates a random key for testing
func GenerateRandomKey() string {
	return fmt.Sprintf("test-key-%s", GenerateRandomString(8))
}

// GenerateRandomValue generates a random value for testing. Values are JSON
// string literals so every provider accepts them.
func GenerateRandomValue() string {
	return fmt.Sprintf("%q", "test-value-"+GenerateRandomString(16))
}

// PopulateTestData saves count entries into p and returns them
func PopulateTestData(t *testing.T, p storage.Provider, count int) map[string]string {
	t.Helper()

	data := make(map[string]string)
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		value := fmt.Sprintf("%q", fmt.Sprintf("test-value-%d", i))

		if result := p.Save(context.Background(), key, []byte(value)); result != storage.Success {
			t.Fatalf("Failed to save test data %s: %s", key, result)
		}
		data[key] = value
	}

	return data
}

// AssertKeyExists verifies that a key exists in p
func AssertKeyExists(t *testing.T, p storage.Provider, key string) {
	t.Helper()

	exists, result := p.Exists(context.Background(), key)
	if result != storage.Success {
		t.Fatalf("Failed to check key existence: %s", result)
	}
	if !exists {
		t.Errorf("Expected key %s to exist, but it doesn't", key)
	}
}

// AssertKeyNotExists verifies that a key does not exist in p
func AssertKeyNotExists(t *testing.T, p storage.Provider, key string) {
	t.Helper()

	exists, result := p.Exists(context.Background(), key)
	if result != storage.Success {
		t.Fatalf("Failed to check key existence: %s", result)
	}
	if exists {
		t.Errorf("Expected key %s to not exist, but it does", key)
	}
}

// AssertKeyValue verifies that a key has the expected value
func AssertKeyValue(t *testing.T, p storage.Provider, key, expectedValue string) {
	t.Helper()

	value, result := p.Load(context.Background(), key)
	if result != storage.Success {
		t.Fatalf("Failed to load key %s: %s", key, result)
	}
	if string(value) != expectedValue {
		t.Errorf("Expected key %s to have value %s, got %s", key, expectedValue, string(value))
	}
}

// WaitForCondition waits for a condition to become true with timeout
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, checkInterval time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(checkInterval)
	}

	t.Fatalf("Condition not met within timeout %v", timeout)
}

// ConcurrentTest runs testFunc on concurrency goroutines and fails on panic
func ConcurrentTest(t *testing.T, concurrency int, testFunc func(int)) {
	t.Helper()

	done := make(chan bool, concurrency)
	errors := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		go func(index int) {
			defer func() {
				if r := recover(); r != nil {
					errors <- fmt.Errorf("goroutine %d panicked: %v", index, r)
				}
				done <- true
			}()

			testFunc(index)
		}(i)
	}

	for i := 0; i < concurrency; i++ {
		<-done
	}

	select {
	case err := <-errors:
		t.Fatalf("Concurrent test failed: %v", err)
	default:
	}
}

// ProviderContract runs the behaviour every storage.Provider shares against
// p, which must be initialized and empty.
func ProviderContract(t *testing.T, p storage.Provider) {
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		if _, result := p.Load(ctx, "contract-missing"); result != storage.NotFound {
			t.Errorf("Expected NotFound, got %s", result)
		}
		AssertKeyNotExists(t, p, "contract-missing")
	})

	t.Run("empty key", func(t *testing.T) {
		if result := p.Save(ctx, "", []byte(`1`)); result != storage.InvalidData {
			t.Errorf("Expected InvalidData, got %s", result)
		}
	})

	t.Run("save overwrite delete", func(t *testing.T) {
		if result := p.Save(ctx, "contract-key", []byte(`"first"`)); result != storage.Success {
			t.Fatalf("Save failed: %s", result)
		}
		if result := p.Save(ctx, "contract-key", []byte(`"second"`)); result != storage.Success {
			t.Fatalf("Overwrite failed: %s", result)
		}
		AssertKeyValue(t, p, "contract-key", `"second"`)
		AssertKeyExists(t, p, "contract-key")

		if result := p.Delete(ctx, "contract-key"); result != storage.Success {
			t.Errorf("Delete failed: %s", result)
		}
		if result := p.Delete(ctx, "contract-key"); result != storage.NotFound {
			t.Errorf("Expected NotFound deleting twice, got %s", result)
		}
		AssertKeyNotExists(t, p, "contract-key")
	})

	t.Run("list and statistics", func(t *testing.T) {
		data := PopulateTestData(t, p, 5)

		keys, result := p.ListKeys(ctx)
		if result != storage.Success {
			t.Fatalf("ListKeys failed: %s", result)
		}
		sort.Strings(keys)
		want := make([]string, 0, len(data))
		for k := range data {
			want = append(want, k)
		}
		sort.Strings(want)
		if fmt.Sprint(keys) != fmt.Sprint(want) {
			t.Errorf("Expected keys %v, got %v", want, keys)
		}

		stats, result := p.Statistics(ctx)
		if result != storage.Success {
			t.Fatalf("Statistics failed: %s", result)
		}
		if stats.ItemCount != int64(len(data)) {
			t.Errorf("Expected %d items, got %d", len(data), stats.ItemCount)
		}
		if stats.Kind != p.Kind() {
			t.Errorf("Expected statistics kind %s, got %s", p.Kind(), stats.Kind)
		}
	})

	t.Run("concurrent saves", func(t *testing.T) {
		ConcurrentTest(t, 8, func(i int) {
			key := fmt.Sprintf("contract-concurrent-%d", i)
			if result := p.Save(ctx, key, []byte(GenerateRandomValue())); result != storage.Success {
				panic(fmt.Sprintf("save %s: %s", key, result))
			}
		})
		for i := 0; i < 8; i++ {
			AssertKeyExists(t, p, fmt.Sprintf("contract-concurrent-%d", i))
		}
	})

	t.Run("clear", func(t *testing.T) {
		if result := p.Clear(ctx); result != storage.Success {
			t.Fatalf("Clear failed: %s", result)
		}
		keys, result := p.ListKeys(ctx)
		if result != storage.Success {
			t.Fatalf("ListKeys failed: %s", result)
		}
		if len(keys) != 0 {
			t.Errorf("Expected no keys after Clear, got %v", keys)
		}
	})
}
