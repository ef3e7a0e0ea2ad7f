// Package storage defines the provider contract shared by every storage
// medium, the result taxonomy and the helpers providers are built from.
package storage

import (
	"context"
	"sync"
	"time"

	"persistence-engine/internal/config"
	"persistence-engine/internal/serializer"
)

// Provider persists raw bytes under string keys on one physical medium.
//
// Every method except Kind returns NotInitialized, without touching the
// medium, until Initialize has succeeded and after Dispose. Missing keys are
// NotFound, never Failed.
type Provider interface {
	Kind() Kind
	Initialize(ctx context.Context, cfg *config.Config) Result
	Save(ctx context.Context, key string, data []byte) Result
	Load(ctx context.Context, key string) ([]byte, Result)
	Delete(ctx context.Context, key string) Result
	Exists(ctx context.Context, key string) (bool, Result)
	ListKeys(ctx context.Context) ([]string, Result)
	Clear(ctx context.Context) Result
	Statistics(ctx context.Context) (Statistics, Result)
	Dispose(ctx context.Context) Result
}

// SerializerProvider is implemented by providers that prefer a particular
// encoding for typed values.
type SerializerProvider interface {
	Serializer() serializer.Serializer
}

// Statistics is recomputed on every call.
type Statistics struct {
	Kind                Kind      `json:"kind"`
	ItemCount           int64     `json:"item_count"`
	TotalSizeBytes      int64     `json:"total_size_bytes"`
	AvailableSpaceBytes int64     `json:"available_space_bytes"` // -1 when unknown
	LastAccess          time.Time `json:"last_access"`
	LastModified        time.Time `json:"last_modified"`
	Healthy             bool      `json:"healthy"`
}

// Touch records access times on operations that reach the medium.
type Touch struct {
	mu       sync.Mutex
	access   time.Time
	modified time.Time
}

func (t *Touch) Accessed() {
	t.mu.Lock()
	t.access = time.Now()
	t.mu.Unlock()
}

func (t *Touch) Modified() {
	now := time.Now()
	t.mu.Lock()
	t.access = now
	t.modified = now
	t.mu.Unlock()
}

func (t *Touch) Apply(s *Statistics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.LastAccess = t.access
	s.LastModified = t.modified
}
