package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/chunkvault/chunkvault/pkg/chunk"
	"github.com/chunkvault/chunkvault/pkg/store"
)

func TestStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	data := []byte("hello world")
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

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()

	data := []byte("immutable")
	hash := chunk.Sum(data)
	if err := s.Put(ctx, hash, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	read, err := s.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	read[0] = 'X'

	again, err := s.Get(ctx, hash)
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if string(again) != "immutable" {
		t.Errorf("stored payload was mutated through a Get result: %q", again)
	}
}

func TestStore_PutHashMismatch(t *testing.T) {
	ctx := context.Background()
	s := New()

	hash := chunk.Sum([]byte("original"))
	err := s.Put(ctx, hash, []byte("tampered"))
	if !errors.Is(err, store.ErrHashMismatch) {
		t.Fatalf("Put returned %v, want ErrHashMismatch", err)
	}

	if _, err := s.Get(ctx, hash); !errors.Is(err, store.ErrChunkNotFound) {
		t.Errorf("Get after rejected Put returned %v, want ErrChunkNotFound", err)
	}
}

func TestStore_PutInvalidHash(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Put(ctx, chunk.Hash("not-a-hash"), []byte("data"))
	if !errors.Is(err, store.ErrInvalidHash) {
		t.Errorf("Put returned %v, want ErrInvalidHash", err)
	}
}

func TestStore_DeleteAbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Delete(ctx, chunk.Sum([]byte("never stored"))); err != nil {
		t.Errorf("Delete of absent chunk returned %v, want nil", err)
	}
}

func TestStore_ListPagination(t *testing.T) {
	ctx := context.Background()
	s := New()

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
	pages := 0
	for {
		page, err := s.List(ctx, "", token, 3)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		pages++
		for _, info := range page.Chunks {
			got[info.Hash] = true
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	if len(got) != len(want) {
		t.Fatalf("List returned %d chunks over %d pages, want %d", len(got), pages, len(want))
	}
	if pages < 3 {
		t.Errorf("expected at least 3 pages with limit 3, got %d", pages)
	}
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := New()

	total := 0
	for _, p := range []string{"one", "three", "seven"} {
		total += len(p)
		if err := s.Put(ctx, chunk.Sum([]byte(p)), []byte(p)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ChunkCount != 3 {
		t.Errorf("ChunkCount = %d, want 3", stats.ChunkCount)
	}
	if stats.UsedBytes != uint64(total) {
		t.Errorf("UsedBytes = %d, want %d", stats.UsedBytes, total)
	}
}

func TestStore_ClosedOperationsFail(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Close()

	data := []byte("late")
	if err := s.Put(ctx, chunk.Sum(data), data); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Put on closed store returned %v, want ErrStoreClosed", err)
	}
	if err := s.HealthCheck(ctx); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("HealthCheck on closed store returned %v, want ErrStoreClosed", err)
	}
}
