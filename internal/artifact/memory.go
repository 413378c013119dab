package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Memory is an in-memory Client for tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte

	// FailNextStores makes that many subsequent Store/StoreBytes calls fail
	// before transfers succeed again. Tests use it to exercise upload retry.
	FailNextStores int
	// MissingKeys forces Fetch/Exists misses for specific keys even after a
	// successful Store.
	MissingKeys map[string]bool

	storeCalls int
}

var _ Client = (*Memory)(nil)

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Seed places an object directly into the store.
func (m *Memory) Seed(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// Object returns a stored object's bytes, or nil when absent.
func (m *Memory) Object(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil
	}
	return append([]byte(nil), data...)
}

// StoreCalls reports how many Store/StoreBytes attempts were made,
// including rejected ones.
func (m *Memory) StoreCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeCalls
}

func (m *Memory) Fetch(ctx context.Context, key, dest string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	data, ok := m.objects[key]
	if m.MissingKeys[key] {
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return 0, fmt.Errorf("fetch %s: %w", key, err)
	}
	return int64(len(data)), nil
}

func (m *Memory) Store(ctx context.Context, key, src string) (int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, fmt.Errorf("read source %s: %w", src, err)
	}
	if err := m.StoreBytes(ctx, key, data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (m *Memory) StoreBytes(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeCalls++
	if m.FailNextStores > 0 {
		m.FailNextStores--
		return errors.New("simulated store failure")
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MissingKeys[key] {
		return false, nil
	}
	_, ok := m.objects[key]
	return ok, nil
}
