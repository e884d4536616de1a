package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/factcheck/internal/model"
)

func TestKey(t *testing.T) {
	a := Key("llm", "gpt-4o-mini", "prompt")
	b := Key("llm", "gpt-4o-mini", "prompt")
	c := Key("llm", "gpt-4o-miniprompt")

	if a != b {
		t.Error("expected identical parts to produce identical keys")
	}
	if a == c {
		t.Error("expected part boundaries to affect the key")
	}
	if !strings.HasPrefix(a, "factcheck:v1:llm:") {
		t.Errorf("unexpected key prefix: %s", a)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss on empty cache")
	}

	value := []byte("v")
	_ = c.Set("k", value, 0)
	value[0] = 'x' // Stored value must be a copy

	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("expected v, got %q (found=%v)", got, ok)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d and %d", hits, misses)
	}

	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	key := Key("search", "serper", "q")

	if err := c.Set(key, []byte("results"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != "results" {
		t.Errorf("expected results, got %q (found=%v)", got, ok)
	}

	if err := c.Set(key, []byte("old"), -time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to miss")
	}

	if err := c.Delete("missing"); err != nil {
		t.Errorf("expected deleting a missing key to succeed, got %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	disk := NewDiskCache(dir, time.Hour)
	_ = disk.Set("k", []byte("v"), 0)

	c := NewLayeredCache(time.Hour, dir, time.Hour)
	if got, ok := c.Get("k"); !ok || string(got) != "v" {
		t.Fatalf("expected disk hit, got %q (found=%v)", got, ok)
	}
	if got, ok := c.memory.Get("k"); !ok || string(got) != "v" {
		t.Errorf("expected promotion to memory, got %q (found=%v)", got, ok)
	}
}

func TestNew(t *testing.T) {
	if New(model.CacheConfig{Enabled: false}) != nil {
		t.Error("expected nil cache when disabled")
	}
	if _, ok := New(model.CacheConfig{Enabled: true, TTL: time.Minute}).(*MemoryCache); !ok {
		t.Error("expected memory cache without a directory")
	}
	if _, ok := New(model.CacheConfig{Enabled: true, TTL: time.Minute, Dir: t.TempDir()}).(*LayeredCache); !ok {
		t.Error("expected layered cache with a directory")
	}
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	in := model.SearchResults{Query: "q", Sources: []model.Source{{URL: "https://example.com"}}}

	if err := SetJSON(c, "k", in, 0); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	var out model.SearchResults
	if !GetJSON(c, "k", &out) || out.Sources[0].URL != "https://example.com" {
		t.Errorf("unexpected decoded value: %+v", out)
	}

	if GetJSON(nil, "k", &out) {
		t.Error("expected nil cache to miss")
	}
}
