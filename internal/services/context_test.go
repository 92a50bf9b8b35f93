package services_test

import (
	"context"
	"testing"

	"technotaggr/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "sess-1")
	ctx = services.WithAudioFile(ctx, "/music/a.wav")
	ctx = services.WithClassifier(ctx, "mood_happy-msd-musicnn-1")
	ctx = services.WithBackbone(ctx, "msd-musicnn-1")
	ctx = services.WithWorker(ctx, 2)
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "sess-1" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if file, ok := services.AudioFileFromContext(ctx); !ok || file != "/music/a.wav" {
		t.Fatalf("unexpected audio file: %v %v", file, ok)
	}
	if name, ok := services.ClassifierFromContext(ctx); !ok || name != "mood_happy-msd-musicnn-1" {
		t.Fatalf("unexpected classifier: %v %v", name, ok)
	}
	if name, ok := services.BackboneFromContext(ctx); !ok || name != "msd-musicnn-1" {
		t.Fatalf("unexpected backbone: %v %v", name, ok)
	}
	if worker, ok := services.WorkerFromContext(ctx); !ok || worker != 2 {
		t.Fatalf("unexpected worker: %v %v", worker, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithClassifier(ctx, "")
	ctx = services.WithSessionID(ctx, "")
	if _, ok := services.ClassifierFromContext(ctx); ok {
		t.Fatal("expected no classifier value")
	}
	if _, ok := services.SessionIDFromContext(ctx); ok {
		t.Fatal("expected no session value")
	}
	if _, ok := services.WorkerFromContext(ctx); ok {
		t.Fatal("expected no worker value")
	}
}
