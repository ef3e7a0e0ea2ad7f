// Package kv implements the key-value storage provider on top of a backend
// that, like most platform preference stores, cannot enumerate its keys.
package kv

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"persistence-engine/internal/config"
)

var ErrKeyNotFound = errors.New("kv: key not found")

// Backend is the physical key-value medium. Get and Size return
// ErrKeyNotFound for absent keys.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context, key string) (int64, error)
	Close() error
}

// OpenBackend opens the backend selected by the key_value config section.
func OpenBackend(cfg *config.Config) (Backend, error) {
	kvCfg := cfg.KeyValue
	switch strings.ToLower(kvCfg.Backend) {
	case "", "badger":
		return NewBadgerBackend(BadgerOptions{
			Path:       cfg.KeyValuePath(),
			InMemory:   kvCfg.InMemory,
			SyncWrites: kvCfg.SyncWrites,
		})
	case "bolt":
		return NewBoltBackend(filepath.Join(cfg.KeyValuePath(), "store.db"))
	case "redis":
		return NewRedisBackend(context.Background(), RedisOptions{
			Addr:     kvCfg.RedisAddr,
			Password: kvCfg.RedisPassword,
			DB:       kvCfg.RedisDB,
		})
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown key-value backend: %s", kvCfg.Backend)
	}
}
