package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"technotaggr/internal/fileutil"
	"technotaggr/internal/logging"
	"technotaggr/internal/services"
)

// FileStatus is the outcome of one planned download.
type FileStatus string

const (
	StatusDownloaded FileStatus = "downloaded"
	StatusSkipped    FileStatus = "skipped"
	StatusFailed     FileStatus = "failed"
)

// extractorLayout maps a backbone variant to where its published files live.
// Heads are published per variant name; the extractor graph itself may carry
// a batch-size suffix.
type extractorLayout struct {
	family string
	name   string
}

var knownExtractors = map[string]extractorLayout{
	"msd-musicnn-1":    {family: "musicnn", name: "msd-musicnn-1"},
	"discogs-effnet-1": {family: "discogs-effnet", name: "discogs-effnet-bs64-1"},
}

// DownloadOptions configures a bundle download.
type DownloadOptions struct {
	BaseURL     string
	Root        string
	Classifiers []string
	Backbones   []string
	// Force re-downloads files that already exist.
	Force  bool
	Client *http.Client
	Logger *slog.Logger
	// OnFile is called after every planned file, in plan order.
	OnFile func(FileResult)
}

// PlannedFile is one remote file and its destination in the bundle.
type PlannedFile struct {
	URL  string
	Path string
}

// FileResult reports what happened to one planned file.
type FileResult struct {
	PlannedFile
	Status FileStatus
	Bytes  int64
	SHA256 string
	Err    error
}

// DownloadReport summarizes a bundle download.
type DownloadReport struct {
	Files      []FileResult
	Downloaded int
	Skipped    int
	Failed     int
}

// PlanDownload lists every file a download would fetch: a descriptor and
// graph per (head, backbone) pair, then a descriptor and graph per backbone.
func PlanDownload(opts DownloadOptions) ([]PlannedFile, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrValidation, "download", "plan", "base URL is required", nil)
	}
	if strings.TrimSpace(opts.Root) == "" {
		return nil, services.Wrap(services.ErrValidation, "download", "plan", "models directory is required", nil)
	}

	var plan []PlannedFile
	for _, head := range opts.Classifiers {
		head = strings.NewReplacer(" ", "_", "/", "_").Replace(strings.TrimSpace(head))
		if head == "" {
			continue
		}
		for _, backbone := range opts.Backbones {
			backbone = strings.TrimSpace(backbone)
			if backbone == "" {
				continue
			}
			for _, ext := range []string{"json", "pb"} {
				filename := fmt.Sprintf("%s-%s.%s", head, backbone, ext)
				plan = append(plan, PlannedFile{
					URL:  fmt.Sprintf("%s/%s/%s/%s", base, HeadsDirName, head, filename),
					Path: filepath.Join(opts.Root, HeadsDirName, head, filename),
				})
			}
		}
	}
	for _, backbone := range opts.Backbones {
		layout, ok := knownExtractors[strings.TrimSpace(backbone)]
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "download", "plan", fmt.Sprintf("unknown backbone variant %q", backbone), nil)
		}
		for _, ext := range []string{"json", "pb"} {
			filename := layout.name + "." + ext
			plan = append(plan, PlannedFile{
				URL:  fmt.Sprintf("%s/%s/%s/%s", base, ExtractorsDirName, layout.family, filename),
				Path: filepath.Join(opts.Root, ExtractorsDirName, layout.family, layout.name, filename),
			})
		}
	}
	return plan, nil
}

// Download fetches the planned files into the bundle. Existing files are
// skipped unless Force is set; a failed file never leaves a partial copy
// behind and does not stop the remaining downloads.
func Download(ctx context.Context, opts DownloadOptions) (DownloadReport, error) {
	plan, err := PlanDownload(opts)
	if err != nil {
		return DownloadReport{}, err
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	logger := logging.NewComponentLogger(opts.Logger, "download")

	var report DownloadReport
	for _, file := range plan {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result := fetchOne(ctx, client, file, opts.Force)
		switch result.Status {
		case StatusDownloaded:
			report.Downloaded++
			logger.Info("model file downloaded", logging.String("path", file.Path), logging.Int("bytes", int(result.Bytes)))
		case StatusSkipped:
			report.Skipped++
			logger.Debug("model file already present", logging.String("path", file.Path))
		case StatusFailed:
			report.Failed++
			logging.WarnWithContext(logger, "model file download failed", "model_download_failed",
				logging.String("url", file.URL),
				logging.Error(result.Err),
				logging.Hint("check network access and that the model name exists upstream"),
				logging.Impact("classifiers using this file will be skipped"),
			)
		}
		report.Files = append(report.Files, result)
		if opts.OnFile != nil {
			opts.OnFile(result)
		}
	}
	return report, nil
}

func fetchOne(ctx context.Context, client *http.Client, file PlannedFile, force bool) FileResult {
	result := FileResult{PlannedFile: file}
	if !force && fileExists(file.Path) {
		result.Status = StatusSkipped
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return failed(result, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return failed(result, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return failed(result, fmt.Errorf("GET %s: %s", file.URL, resp.Status))
	}

	written, err := fileutil.StreamAtomic(file.Path, resp.Body, resp.ContentLength, 0o644)
	if err != nil {
		return failed(result, err)
	}
	result.Status = StatusDownloaded
	result.Bytes = written.Bytes
	result.SHA256 = written.SHA256
	return result
}

func failed(result FileResult, err error) FileResult {
	if errors.Is(err, context.Canceled) {
		err = fmt.Errorf("download canceled: %w", err)
	}
	result.Status = StatusFailed
	result.Err = services.Wrap(services.ErrExternalTool, "download", "fetch", result.URL, err)
	return result
}
