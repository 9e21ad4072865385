package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
)

func TestWithDriverParams(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "./data/docgate.db", want: "./data/docgate.db?a=1"},
		{in: "./data/docgate.db?mode=rwc", want: "./data/docgate.db?mode=rwc&a=1"},
		{in: ":memory:", want: ":memory:"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := withDriverParams(tt.in, "a=1"); got != tt.want {
			t.Errorf("withDriverParams(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}

func TestInitDB_ConcurrentWrites(t *testing.T) {
	db := setupTestDB(t)
	stats := NewStatsAPI(db, slog.New(slog.DiscardHandler), nil)
	ctx := context.Background()

	const writers = 64
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := stats.Record(ctx, fmt.Sprintf("/page/%d", i%8), "test-agent", 200); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Record() error = %v", err)
	}

	summary, err := stats.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.TotalRequests != writers || summary.UniquePaths != 8 {
		t.Errorf("summary = %+v, expected %d requests over 8 paths", summary, writers)
	}
}
