package kv

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"persistence-engine/internal/config"
)

func backendFactories(t *testing.T) map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend { return NewMemoryBackend() },
		"badger": func(t *testing.T) Backend {
			b, err := NewBadgerBackend(BadgerOptions{InMemory: true})
			if err != nil {
				t.Fatalf("NewBadgerBackend() error = %v", err)
			}
			return b
		},
		"badger on disk": func(t *testing.T) Backend {
			b, err := NewBadgerBackend(BadgerOptions{Path: t.TempDir(), SyncWrites: true})
			if err != nil {
				t.Fatalf("NewBadgerBackend() error = %v", err)
			}
			return b
		},
		"bolt": func(t *testing.T) Backend {
			b, err := NewBoltBackend(filepath.Join(t.TempDir(), "kv", "store.db"))
			if err != nil {
				t.Fatalf("NewBoltBackend() error = %v", err)
			}
			return b
		},
		"redis": func(t *testing.T) Backend {
			b, err := NewRedisBackend(context.Background(), RedisOptions{Addr: "localhost:6379", DB: 15})
			if err != nil {
				t.Skipf("Redis not available: %v", err)
			}
			return b
		},
	}
}

func TestBackends(t *testing.T) {
	ctx := context.Background()

	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			defer b.Close()

			tests := []struct {
				key   string
				value string
			}{
				{"backend-test:simple", "value1"},
				{"backend-test:empty", ""},
				{"backend-test:unicode-키", "값"},
			}

			for _, tt := range tests {
				if err := b.Set(ctx, tt.key, []byte(tt.value)); err != nil {
					t.Fatalf("Set(%s) error = %v", tt.key, err)
				}
				got, err := b.Get(ctx, tt.key)
				if err != nil {
					t.Fatalf("Get(%s) error = %v", tt.key, err)
				}
				if string(got) != tt.value {
					t.Errorf("Get(%s) = %q, want %q", tt.key, got, tt.value)
				}
				size, err := b.Size(ctx, tt.key)
				if err != nil || size != int64(len(tt.value)) {
					t.Errorf("Size(%s) = %d, %v", tt.key, size, err)
				}
			}

			has, err := b.Has(ctx, "backend-test:simple")
			if err != nil || !has {
				t.Errorf("Has() = %v, %v", has, err)
			}

			for _, tt := range tests {
				if err := b.Delete(ctx, tt.key); err != nil {
					t.Fatalf("Delete(%s) error = %v", tt.key, err)
				}
			}

			if _, err := b.Get(ctx, "backend-test:simple"); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
			}
			if _, err := b.Size(ctx, "backend-test:simple"); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("Expected ErrKeyNotFound from Size, got %v", err)
			}
			has, err = b.Has(ctx, "backend-test:simple")
			if err != nil || has {
				t.Errorf("Has() after delete = %v, %v", has, err)
			}
		})
	}
}

func TestBackendConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	b, err := NewBadgerBackend(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadgerBackend() error = %v", err)
	}
	defer b.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				if err := b.Set(ctx, key, []byte(key)); err != nil {
					t.Errorf("Set(%s) error = %v", key, err)
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < 8; w++ {
		key := fmt.Sprintf("w%d-24", w)
		got, err := b.Get(ctx, key)
		if err != nil || string(got) != key {
			t.Errorf("Get(%s) = %q, %v", key, got, err)
		}
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	b, err := NewBoltBackend(path)
	if err != nil {
		t.Fatalf("NewBoltBackend() error = %v", err)
	}
	if err := b.Set(ctx, "volume", []byte("7")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	b.Close()

	b, err = NewBoltBackend(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer b.Close()

	got, err := b.Get(ctx, "volume")
	if err != nil || string(got) != "7" {
		t.Errorf("Get() after reopen = %q, %v", got, err)
	}
}

func TestBoltRequiresPath(t *testing.T) {
	if _, err := NewBoltBackend("  "); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestCancelledContext(t *testing.T) {
	b, _ := NewBadgerBackend(BadgerOptions{InMemory: true})
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Set(ctx, "k", []byte("v")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestOpenBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Paths.Data = t.TempDir()

	for _, name := range []string{"badger", "bolt", "memory"} {
		cfg.KeyValue.Backend = name
		b, err := OpenBackend(cfg)
		if err != nil {
			t.Fatalf("OpenBackend(%s) error = %v", name, err)
		}
		if b.Name() != name {
			t.Errorf("Expected %s backend, got %s", name, b.Name())
		}
		b.Close()
	}

	cfg.KeyValue.Backend = "leveldb"
	if _, err := OpenBackend(cfg); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestBackendProperties(t *testing.T) {
	ctx := context.Background()
	b, err := NewBadgerBackend(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadgerBackend() error = %v", err)
	}
	defer b.Close()

	properties := gopter.NewProperties(nil)

	properties.Property("Set then Get returns same value", prop.ForAll(
		func(key string, value string) bool {
			if err := b.Set(ctx, key, []byte(value)); err != nil {
				return false
			}
			got, err := b.Get(ctx, key)
			return err == nil && string(got) == value
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.Property("Delete after Set removes key", prop.ForAll(
		func(key string, value string) bool {
			if err := b.Set(ctx, key, []byte(value)); err != nil {
				return false
			}
			if err := b.Delete(ctx, key); err != nil {
				return false
			}
			has, err := b.Has(ctx, key)
			return err == nil && !has
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
