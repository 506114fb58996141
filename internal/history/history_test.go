package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestMemoryStoreNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(3)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		rec := &Record{Action: fmt.Sprintf("A%d", i), Status: StatusSucceeded, CreatedAt: int64(i)}
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		if rec.ID != int64(i) {
			t.Fatalf("expected id %d, got %d", i, rec.ID)
		}
	}

	all, err := store.ListLatest(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected capacity-bounded list, got %d", len(all))
	}
	if all[0].Action != "A5" || all[2].Action != "A3" {
		t.Fatalf("unexpected order: %+v", all)
	}

	two, err := store.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("list 2: %v", err)
	}
	if len(two) != 2 || two[0].Action != "A5" {
		t.Fatalf("unexpected limited list: %+v", two)
	}
}

func TestMemoryStoreConcurrentSave(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Save(context.Background(), &Record{Action: "BALANCE"})
		}()
	}
	wg.Wait()
	list, _ := store.ListLatest(context.Background(), 0)
	if len(list) != 50 {
		t.Fatalf("expected 50 records, got %d", len(list))
	}
	if list[0].ID != 50 {
		t.Fatalf("expected newest id 50, got %d", list[0].ID)
	}
}
