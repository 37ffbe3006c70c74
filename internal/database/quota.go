package database

import (
	"context"
	"errors"
	"sync"
)

// QuotaStore caps the total number of bytes written through it, the way a
// browser caps local storage. Sizes are learned per key on first access, so
// the quota covers the keys this process has touched.
type QuotaStore struct {
	Store
	limit int64
	mu    sync.Mutex
	used  int64
	sizes map[string]int64
}

func WithQuota(s Store, limit int64) *QuotaStore {
	return &QuotaStore{
		Store: s,
		limit: limit,
		sizes: make(map[string]int64),
	}
}

func (q *QuotaStore) sizeOf(ctx context.Context, key string) (int64, error) {
	if n, ok := q.sizes[key]; ok {
		return n, nil
	}

	val, err := q.Store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n := int64(len(val))
	q.sizes[key] = n
	q.used += n
	return n, nil
}

func (q *QuotaStore) Set(ctx context.Context, key string, value []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev, err := q.sizeOf(ctx, key)
	if err != nil {
		return err
	}

	next := int64(len(value))
	if q.limit > 0 && q.used-prev+next > q.limit {
		return ErrQuotaExceeded
	}

	if err := q.Store.Set(ctx, key, value); err != nil {
		return err
	}

	q.used += next - prev
	q.sizes[key] = next
	return nil
}

func (q *QuotaStore) Delete(ctx context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.Store.Delete(ctx, key); err != nil {
		return err
	}

	q.used -= q.sizes[key]
	delete(q.sizes, key)
	return nil
}

// Used returns the bytes accounted for so far.
func (q *QuotaStore) Used() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}
