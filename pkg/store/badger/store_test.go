package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/chunkvault/chunkvault/pkg/chunk"
	"github.com/chunkvault/chunkvault/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func TestStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("hello badger")
	hash := chunk.Sum(data)

	if err := s.Put(ctx, hash, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	read, err := s.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(read) != string(data) {
		t.Errorf("Get returned %q, want %q", read, data)
	}
}

func TestStore_PutIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("same payload twice")
	hash := chunk.Sum(data)

	if err := s.Put(ctx, hash, data); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	if err := s.Put(ctx, hash, data); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ChunkCount != 1 {
		t.Errorf("ChunkCount = %d, want 1", stats.ChunkCount)
	}
}

func TestStore_PutHashMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	hash := chunk.Sum([]byte("original"))
	err := s.Put(ctx, hash, []byte("tampered"))
	if !errors.Is(err, store.ErrHashMismatch) {
		t.Fatalf("Put returned %v, want ErrHashMismatch", err)
	}

	if _, err := s.Get(ctx, hash); !errors.Is(err, store.ErrChunkNotFound) {
		t.Errorf("Get after rejected Put returned %v, want ErrChunkNotFound", err)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, chunk.Sum([]byte("never stored")))
	if !errors.Is(err, store.ErrChunkNotFound) {
		t.Errorf("Get returned %v, want ErrChunkNotFound", err)
	}
}

func TestStore_DeleteAbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Delete(ctx, chunk.Sum([]byte("never stored"))); err != nil {
		t.Errorf("Delete of absent chunk returned %v, want nil", err)
	}
}

func TestStore_DeleteRemovesPayload(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("to be deleted")
	hash := chunk.Sum(data)

	if err := s.Put(ctx, hash, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(ctx, hash); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := s.Get(ctx, hash); !errors.Is(err, store.ErrChunkNotFound) {
		t.Errorf("Get after Delete returned %v, want ErrChunkNotFound", err)
	}
}

func TestStore_ListPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	want := make(map[chunk.Hash]bool)
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		h := chunk.Sum([]byte(p))
		want[h] = true
		if err := s.Put(ctx, h, []byte(p)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	got := make(map[chunk.Hash]bool)
	token := ""
	var prev chunk.Hash
	for {
		page, err := s.List(ctx, "", token, 3)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		for _, info := range page.Chunks {
			if info.Hash <= prev {
				t.Errorf("List not ordered: %s after %s", info.Hash, prev)
			}
			prev = info.Hash
			got[info.Hash] = true
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	if len(got) != len(want) {
		t.Fatalf("List returned %d chunks, want %d", len(got), len(want))
	}
}

func TestStore_ListPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var first chunk.Hash
	for i, p := range [][]byte{[]byte("aaa"), []byte("bbb"), []byte("ccc")} {
		h := chunk.Sum(p)
		if i == 0 {
			first = h
		}
		if err := s.Put(ctx, h, p); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	page, err := s.List(ctx, string(first)[:4], "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Chunks) != 1 || page.Chunks[0].Hash != first {
		t.Fatalf("List with prefix returned %d chunks, want just %s", len(page.Chunks), first.Short())
	}
}

func TestStore_ClosedOperationsFail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Close()

	data := []byte("late")
	if err := s.Put(ctx, chunk.Sum(data), data); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Put on closed store returned %v, want ErrStoreClosed", err)
	}
	if err := s.HealthCheck(ctx); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("HealthCheck on closed store returned %v, want ErrStoreClosed", err)
	}
}

func TestStore_HealthCheck(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
