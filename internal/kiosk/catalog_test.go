package kiosk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/boothbuddy/boothbuddy/internal/filters"
)

func TestFilterCatalog_CachesAndServesStale(t *testing.T) {
	calls := 0
	var fetchErr error
	fetch := func(ctx context.Context) ([]filters.FilterSpec, error) {
		calls++
		if fetchErr != nil {
			return nil, fetchErr
		}
		return filters.Catalog(), nil
	}
	cat := NewFilterCatalog(fetch, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if cat.Peek() != nil {
		t.Error("Peek() before first fetch != nil")
	}
	if _, err := cat.Get(context.Background()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	cat.Get(context.Background())
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}

	fetchErr = errors.New("api down")
	list, err := cat.Refresh(context.Background())
	if err != nil || len(list) == 0 {
		t.Errorf("Refresh() with stale cache = %d, %v", len(list), err)
	}

	cat.Invalidate()
	if _, err := cat.Get(context.Background()); err == nil {
		t.Error("Get() after Invalidate() with failing fetch should error")
	}
}
