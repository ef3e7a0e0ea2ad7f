package persistence

import (
	"context"

	"persistence-engine/internal/storage"
)

// Save serializes v with the target provider's serializer and saves it.
func Save[T any](ctx context.Context, m *Manager, key string, v T, kinds ...storage.Kind) storage.Result {
	p, result := m.Provider(kinds...)
	if !result.OK() {
		return result
	}
	return storage.SaveValue(ctx, p, nil, key, v)
}

// Load reads key and decodes it into a T. Absent keys are NotFound.
func Load[T any](ctx context.Context, m *Manager, key string, kinds ...storage.Kind) (T, storage.Result) {
	p, result := m.Provider(kinds...)
	if !result.OK() {
		var zero T
		return zero, result
	}
	return storage.LoadValue[T](ctx, p, nil, key)
}

// Settings always live in the key-value store.

func SaveSettings[T any](ctx context.Context, m *Manager, key string, v T) storage.Result {
	return Save(ctx, m, key, v, storage.KeyValue)
}

func LoadSettings[T any](ctx context.Context, m *Manager, key string) (T, storage.Result) {
	return Load[T](ctx, m, key, storage.KeyValue)
}

// Game data always lives in JSON files.

func SaveGameData[T any](ctx context.Context, m *Manager, key string, v T) storage.Result {
	return Save(ctx, m, key, v, storage.JSONFile)
}

func LoadGameData[T any](ctx context.Context, m *Manager, key string) (T, storage.Result) {
	return Load[T](ctx, m, key, storage.JSONFile)
}
