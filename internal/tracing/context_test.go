package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestNewRunID(t *testing.T) {
	id1 := NewRunID()
	id2 := NewRunID()

	if id1 == "" {
		t.Error("NewRunID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewRunID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithResource(ctx, "data/cities.csv")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-1" {
		t.Errorf("expected trace-1, got %s", tc.TraceID)
	}
	if tc.RunID != "run-1" {
		t.Errorf("expected run-1, got %s", tc.RunID)
	}
	if tc.Resource != "data/cities.csv" {
		t.Errorf("expected data/cities.csv, got %s", tc.Resource)
	}
}

func TestMissingValues(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" {
		t.Error("expected empty trace ID")
	}
	if GetRunID(ctx) != "" {
		t.Error("expected empty run ID")
	}
	if GetResource(ctx) != "" {
		t.Error("expected empty resource")
	}
}

func TestNewRunContext(t *testing.T) {
	t.Run("keeps existing trace", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "trace-keep")
		ctx = NewRunContext(ctx)

		if GetTraceID(ctx) != "trace-keep" {
			t.Error("trace ID was replaced")
		}
		if GetRunID(ctx) == "" {
			t.Error("run ID not set")
		}
	})

	t.Run("creates trace when missing", func(t *testing.T) {
		ctx := NewRunContext(context.Background())

		if GetTraceID(ctx) == "" {
			t.Error("trace ID not set")
		}
	})

	t.Run("run IDs differ per run", func(t *testing.T) {
		base := WithTraceID(context.Background(), "trace")
		a := NewRunContext(base)
		b := NewRunContext(base)

		if GetRunID(a) == GetRunID(b) {
			t.Error("expected distinct run IDs")
		}
	})
}
