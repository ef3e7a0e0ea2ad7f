package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLRUCache_BasicOperations(t *testing.T) {
	cache := NewLRUCache(3)
	defer cache.Close()

	cache.Put("slot1", []byte("value1"), 0)
	cache.Put("slot2", []byte("value2"), 0)

	value, found := cache.Get("slot1")
	if !found || string(value) != "value1" {
		t.Errorf("Expected to find slot1 with value1, got found=%v, value=%s", found, string(value))
	}

	if _, found = cache.Get("nonexistent"); found {
		t.Error("Expected not to find nonexistent key")
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	cache := NewLRUCache(2)
	defer cache.Close()

	cache.Put("slot1", []byte("value1"), 0)
	cache.Put("slot2", []byte("value2"), 0)
	cache.Get("slot1")
	cache.Put("slot3", []byte("value3"), 0)

	if _, found := cache.Get("slot2"); found {
		t.Error("Expected slot2 to be evicted as least recently used")
	}
	for _, key := range []string{"slot1", "slot3"} {
		if _, found := cache.Get(key); !found {
			t.Errorf("Expected %s to still exist", key)
		}
	}
	if stats := cache.Stats(); stats.Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestLRUCache_Update(t *testing.T) {
	cache := NewLRUCache(2)
	defer cache.Close()

	cache.Put("slot1", []byte("old"), 0)
	cache.Put("slot1", []byte("new"), 0)

	value, _ := cache.Get("slot1")
	if string(value) != "new" {
		t.Errorf("Expected updated value, got %s", value)
	}
	if cache.Stats().Size != 1 {
		t.Errorf("Expected size 1 after update, got %d", cache.Stats().Size)
	}
}

func TestLRUCache_Delete(t *testing.T) {
	cache := NewLRUCache(3)
	defer cache.Close()

	cache.Put("slot1", []byte("value1"), 0)
	if !cache.Delete("slot1") {
		t.Error("Expected Delete to report removal")
	}
	if cache.Delete("slot1") {
		t.Error("Expected second Delete to report nothing removed")
	}
	if _, found := cache.Get("slot1"); found {
		t.Error("Expected slot1 to be gone")
	}
}

func TestLRUCache_TTL(t *testing.T) {
	cache := NewLRUCache(3)
	defer cache.Close()

	cache.Put("short", []byte("value"), 20*time.Millisecond)
	cache.Put("forever", []byte("value"), 0)

	time.Sleep(40 * time.Millisecond)

	if _, found := cache.Get("short"); found {
		t.Error("Expected short-lived entry to expire")
	}
	if _, found := cache.Get("forever"); !found {
		t.Error("Expected entry without TTL to remain")
	}
}

func TestLRUCache_Stats(t *testing.T) {
	cache := NewLRUCache(10)
	defer cache.Close()

	cache.Put("slot1", []byte("value1"), 0)
	cache.Get("slot1")
	cache.Get("slot1")
	cache.Get("missing")

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Expected 2 hits and 1 miss, got %d and %d", stats.Hits, stats.Misses)
	}
	if stats.Capacity != 10 {
		t.Errorf("Expected capacity 10, got %d", stats.Capacity)
	}
	if stats.HitRatio < 0.66 || stats.HitRatio > 0.67 {
		t.Errorf("Expected hit ratio ~0.667, got %f", stats.HitRatio)
	}
}

func TestLRUCache_Clear(t *testing.T) {
	cache := NewLRUCache(3)
	defer cache.Close()

	cache.Put("slot1", []byte("value1"), 0)
	cache.Put("slot2", []byte("value2"), 0)
	cache.Clear()

	if cache.Stats().Size != 0 {
		t.Errorf("Expected empty cache, got size %d", cache.Stats().Size)
	}
	cache.Put("slot3", []byte("value3"), 0)
	if _, found := cache.Get("slot3"); !found {
		t.Error("Expected cache to be usable after Clear")
	}
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	cache := NewLRUCache(5)
	defer cache.Close()

	cache.Put("slot1", []byte("value1"), 10*time.Millisecond)
	cache.Put("slot2", []byte("value2"), 0)
	cache.Put("slot3", []byte("value3"), 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	if removed := cache.CleanupExpired(); removed != 2 {
		t.Errorf("Expected 2 expired entries removed, got %d", removed)
	}
	if cache.Stats().Size != 1 {
		t.Errorf("Expected 1 entry left, got %d", cache.Stats().Size)
	}
}

func TestLRUCache_Janitor(t *testing.T) {
	cache := NewLRUCache(5)
	cache.Put("slot1", []byte("value1"), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cache.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for cache.Stats().Size != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if cache.Stats().Size != 0 {
		t.Error("Expected janitor to remove the expired entry")
	}
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	cache := NewLRUCache(100)
	defer cache.Close()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("slot-%d-%d", w, i%50)
				cache.Put(key, []byte(key), 0)
				cache.Get(key)
			}
		}(w)
	}
	wg.Wait()

	if size := cache.Stats().Size; size > 100 {
		t.Errorf("Cache exceeded capacity: %d", size)
	}
}

func TestLRUCache_DataIntegrity(t *testing.T) {
	cache := NewLRUCache(3)
	defer cache.Close()

	original := []byte("original data")
	cache.Put("slot1", original, 0)
	original[0] = 'X'

	value, _ := cache.Get("slot1")
	if string(value) != "original data" {
		t.Errorf("Expected cache to keep its own copy, got %s", value)
	}

	value[0] = 'Y'
	again, _ := cache.Get("slot1")
	if string(again) != "original data" {
		t.Errorf("Expected returned value to be a copy, got %s", again)
	}
}
