package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

func TestSetQueryObserver(t *testing.T) {
	t.Parallel()

	// Save and restore the global to avoid test pollution.
	defer SetQueryObserver(nil)

	called := false
	obs := QueryObserverFunc(func(_ context.Context, _, _ string, _ time.Duration) {
		called = true
	})

	SetQueryObserver(obs)
	got := getQueryObserver()
	if got == nil {
		t.Fatal("expected non-nil observer after Set")
	}
	got.ObserveQuery(context.Background(), "/test", "ok", time.Millisecond)
	if !called {
		t.Error("observer was not called")
	}

	SetQueryObserver(nil)
	got = getQueryObserver()
	if got != nil {
		t.Errorf("expected nil observer after Set(nil), got %v", got)
	}
}

func TestLoggingTracer_RoundTrip(t *testing.T) {
	tr := wrapQueryTracer(nil)

	var gotRoute, gotOutcome string
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, route, outcome string, _ time.Duration) {
		gotRoute, gotOutcome = route, outcome
	}))
	defer SetQueryObserver(nil)

	ctx := tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{
		SQL: "SELECT 1",
	})
	time.Sleep(time.Millisecond)
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

	if gotRoute != "unknown" {
		t.Errorf("route = %q, want %q", gotRoute, "unknown")
	}
	if gotOutcome != "ok" {
		t.Errorf("outcome = %q, want %q", gotOutcome, "ok")
	}
}
