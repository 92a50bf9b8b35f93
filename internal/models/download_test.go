package models_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"technotaggr/internal/logging"
	"technotaggr/internal/models"
	"technotaggr/internal/services"
)

func TestPlanDownloadLayout(t *testing.T) {
	root := t.TempDir()
	plan, err := models.PlanDownload(models.DownloadOptions{
		BaseURL:     "https://models.example/models/",
		Root:        root,
		Classifiers: []string{"mood_happy"},
		Backbones:   []string{"msd-musicnn-1", "discogs-effnet-1"},
	})
	if err != nil {
		t.Fatalf("PlanDownload: %v", err)
	}
	want := []models.PlannedFile{
		{URL: "https://models.example/models/classification-heads/mood_happy/mood_happy-msd-musicnn-1.json", Path: filepath.Join(root, "classification-heads", "mood_happy", "mood_happy-msd-musicnn-1.json")},
		{URL: "https://models.example/models/classification-heads/mood_happy/mood_happy-msd-musicnn-1.pb", Path: filepath.Join(root, "classification-heads", "mood_happy", "mood_happy-msd-musicnn-1.pb")},
		{URL: "https://models.example/models/classification-heads/mood_happy/mood_happy-discogs-effnet-1.json", Path: filepath.Join(root, "classification-heads", "mood_happy", "mood_happy-discogs-effnet-1.json")},
		{URL: "https://models.example/models/classification-heads/mood_happy/mood_happy-discogs-effnet-1.pb", Path: filepath.Join(root, "classification-heads", "mood_happy", "mood_happy-discogs-effnet-1.pb")},
		{URL: "https://models.example/models/feature-extractors/musicnn/msd-musicnn-1.json", Path: filepath.Join(root, "feature-extractors", "musicnn", "msd-musicnn-1", "msd-musicnn-1.json")},
		{URL: "https://models.example/models/feature-extractors/musicnn/msd-musicnn-1.pb", Path: filepath.Join(root, "feature-extractors", "musicnn", "msd-musicnn-1", "msd-musicnn-1.pb")},
		{URL: "https://models.example/models/feature-extractors/discogs-effnet/discogs-effnet-bs64-1.json", Path: filepath.Join(root, "feature-extractors", "discogs-effnet", "discogs-effnet-bs64-1", "discogs-effnet-bs64-1.json")},
		{URL: "https://models.example/models/feature-extractors/discogs-effnet/discogs-effnet-bs64-1.pb", Path: filepath.Join(root, "feature-extractors", "discogs-effnet", "discogs-effnet-bs64-1", "discogs-effnet-bs64-1.pb")},
	}
	if len(plan) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(plan))
	}
	for i := range want {
		if plan[i] != want[i] {
			t.Fatalf("plan[%d] = %+v, want %+v", i, plan[i], want[i])
		}
	}
}

func TestPlanDownloadRejectsUnknownBackbone(t *testing.T) {
	_, err := models.PlanDownload(models.DownloadOptions{BaseURL: "http://x", Root: t.TempDir(), Backbones: []string{"vggish-1"}})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDownloadSkipsExistingAndRecordsFailures(t *testing.T) {
	var mu sync.Mutex
	requested := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested[r.URL.Path]++
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "mood_sad-msd-musicnn-1.pb") {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("payload:" + r.URL.Path))
	}))
	defer server.Close()

	root := t.TempDir()
	existing := filepath.Join(root, "classification-heads", "mood_happy", "mood_happy-msd-musicnn-1.json")
	if err := os.MkdirAll(filepath.Dir(existing), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing, []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}

	var seen []models.FileResult
	report, err := models.Download(context.Background(), models.DownloadOptions{
		BaseURL:     server.URL,
		Root:        root,
		Classifiers: []string{"mood_happy", "mood_sad"},
		Backbones:   []string{"msd-musicnn-1"},
		Client:      server.Client(),
		Logger:      logging.NewNop(),
		OnFile:      func(r models.FileResult) { seen = append(seen, r) },
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if report.Skipped != 1 || report.Failed != 1 || report.Downloaded != 4 {
		t.Fatalf("unexpected report: downloaded=%d skipped=%d failed=%d", report.Downloaded, report.Skipped, report.Failed)
	}
	if len(seen) != 6 {
		t.Fatalf("expected a callback per planned file, got %d", len(seen))
	}

	local, err := os.ReadFile(existing)
	if err != nil || string(local) != "local" {
		t.Fatalf("existing file should be untouched, got %q (%v)", local, err)
	}
	failedPath := filepath.Join(root, "classification-heads", "mood_sad", "mood_sad-msd-musicnn-1.pb")
	if _, err := os.Stat(failedPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("failed download must not leave a file, stat err=%v", err)
	}
	extractor := filepath.Join(root, "feature-extractors", "musicnn", "msd-musicnn-1", "msd-musicnn-1.pb")
	data, err := os.ReadFile(extractor)
	if err != nil {
		t.Fatalf("read extractor: %v", err)
	}
	if string(data) != "payload:/feature-extractors/musicnn/msd-musicnn-1.pb" {
		t.Fatalf("unexpected extractor payload %q", data)
	}
	if requested["/classification-heads/mood_happy/mood_happy-msd-musicnn-1.json"] != 0 {
		t.Fatal("existing file should not be requested")
	}
}

func TestDownloadForceRefetches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fresh"))
	}))
	defer server.Close()

	root := t.TempDir()
	opts := models.DownloadOptions{
		BaseURL:     server.URL,
		Root:        root,
		Classifiers: []string{"mood_happy"},
		Backbones:   []string{"msd-musicnn-1"},
		Client:      server.Client(),
	}
	if _, err := models.Download(context.Background(), opts); err != nil {
		t.Fatalf("first Download: %v", err)
	}
	opts.Force = true
	report, err := models.Download(context.Background(), opts)
	if err != nil {
		t.Fatalf("forced Download: %v", err)
	}
	if report.Downloaded != 4 || report.Skipped != 0 {
		t.Fatalf("forced download should refetch everything, got %+v", report)
	}
}
