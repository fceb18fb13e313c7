package preview

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkarlberg/studiotether/internal/camera"
)

// ReconcileResult summarises one startup pass over the download
// directory.
type ReconcileResult struct {
	// RawDeleted counts RAW files removed. A RAW on disk at startup
	// is an orphan from an interrupted run; its pairing window is
	// long gone.
	RawDeleted int

	// DotfilesDeleted counts hidden metadata files removed (.DS_Store
	// and friends).
	DotfilesDeleted int

	// CompanionsLoaded counts companion JPEGs fed back through the
	// ingest pipeline. Decode failures surface through the usual
	// pipeline counters.
	CompanionsLoaded int

	// Failures counts files that could not be removed or read. Each is
	// logged and skipped; reconciliation continues.
	Failures int
}

// ReconcileStartup brings the download directory and the preview cache
// back in line after a restart: orphaned RAWs and dotfiles are deleted,
// surviving companion JPEGs are re-ingested so the cache reflects what
// is on disk, and files of unknown type are left untouched. Call it
// before Start, while nothing else is writing to the directory.
func (in *Ingester) ReconcileStartup() (ReconcileResult, error) {
	var result ReconcileResult

	if err := os.MkdirAll(in.downloadDir, downloadDirPerm); err != nil {
		return result, fmt.Errorf("preview: create download directory: %w", err)
	}

	entries, err := os.ReadDir(in.downloadDir)
	if err != nil {
		return result, fmt.Errorf("preview: read download directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(in.downloadDir, name)

		if strings.HasPrefix(name, ".") {
			if err := os.Remove(path); err != nil {
				in.logWarn("reconcile: remove dotfile failed", "path", path, "error", err)
				result.Failures++
				continue
			}
			result.DotfilesDeleted++
			continue
		}

		switch camera.ClassifyFile(name) {
		case camera.KindRaw:
			if err := os.Remove(path); err != nil {
				in.logWarn("reconcile: remove orphaned raw failed", "path", path, "error", err)
				result.Failures++
				continue
			}
			result.RawDeleted++

		case camera.KindCompanion:
			data, err := os.ReadFile(path)
			if err != nil {
				in.logWarn("reconcile: read companion failed", "path", path, "error", err)
				result.Failures++
				continue
			}
			in.handle(camera.DownloadEvent{
				LocalName: name,
				Kind:      camera.KindCompanion,
				Data:      data,
				ArrivedAt: modTimeOrNow(entry),
			}, false)
			result.CompanionsLoaded++

		default:
			// Not ours to manage.
		}
	}

	in.logInfo("download directory reconciled",
		"raw_deleted", result.RawDeleted,
		"dotfiles_deleted", result.DotfilesDeleted,
		"companions_loaded", result.CompanionsLoaded,
		"failures", result.Failures)
	return result, nil
}

func modTimeOrNow(entry os.DirEntry) time.Time {
	if info, err := entry.Info(); err == nil {
		return info.ModTime()
	}
	return time.Now()
}
