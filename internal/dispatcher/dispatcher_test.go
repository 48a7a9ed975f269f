package dispatcher

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scriptforge/internal/model"
)

func itemsNamed(n int) []model.WorkItem {
	items := make([]model.WorkItem, n)
	for i := range items {
		items[i] = model.WorkItem{Function: model.FunctionRecord{Name: "f" + strconv.Itoa(i)}}
	}
	return items
}

func TestRunBatchPreservesInputOrder(t *testing.T) {
	items := itemsNamed(20)
	results := RunBatch(context.Background(), items, Options{MaxWorkers: 4}, func(ctx context.Context, item model.WorkItem) model.WorkResult {
		// Deliberately vary sleep so completion order scrambles.
		time.Sleep(time.Duration(len(item.Function.Name)%3) * time.Millisecond)
		return model.SuccessResult(item.Function.Name, false, 0)
	})

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, item := range items {
		if results[i].Text != item.Function.Name {
			t.Fatalf("result %d out of order: want %s, got %s", i, item.Function.Name, results[i].Text)
		}
	}
}

func TestRunBatchRespectsWorkerBound(t *testing.T) {
	var current, peak int32
	var mu sync.Mutex

	items := itemsNamed(30)
	RunBatch(context.Background(), items, Options{MaxWorkers: 3}, func(ctx context.Context, item model.WorkItem) model.WorkResult {
		n := atomic.AddInt32(&current, 1)
		mu.Lock()
		if n > int32(peak) {
			peak = n
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return model.SuccessResult("", false, 0)
	})

	if peak > 3 {
		t.Fatalf("expected at most 3 concurrent workers, observed %d", peak)
	}
}

func TestRunBatchIsolatesPerItemFailure(t *testing.T) {
	items := itemsNamed(5)
	results := RunBatch(context.Background(), items, Options{MaxWorkers: 2}, func(ctx context.Context, item model.WorkItem) model.WorkResult {
		if item.Function.Name == "f2" {
			panic("boom")
		}
		return model.SuccessResult(item.Function.Name, false, 0)
	})

	for i, item := range items {
		if item.Function.Name == "f2" {
			if results[i].Success {
				t.Fatalf("expected the panicking item to report failure")
			}
			continue
		}
		if !results[i].Success {
			t.Fatalf("expected item %s unaffected by a sibling's panic", item.Function.Name)
		}
	}
}

func TestRunBatchEmptyInput(t *testing.T) {
	results := RunBatch(context.Background(), nil, Options{}, func(ctx context.Context, item model.WorkItem) model.WorkResult {
		t.Fatalf("process should not be called for an empty batch")
		return model.WorkResult{}
	})
	if len(results) != 0 {
		t.Fatalf("expected no results")
	}
}

func TestRunBatchCancelledContextFailsRemainingItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := itemsNamed(4)
	results := RunBatch(ctx, items, Options{MaxWorkers: 2}, func(ctx context.Context, item model.WorkItem) model.WorkResult {
		return model.SuccessResult(item.Function.Name, false, 0)
	})

	for i, r := range results {
		if r.Success {
			t.Fatalf("expected item %d to fail after cancellation, got success", i)
		}
		if r.ReasonKind != model.KindCancelled {
			t.Fatalf("expected KindCancelled, got %s", r.ReasonKind)
		}
	}
}
