package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/neperienx/bookpipeline/internal/config"
	"github.com/neperienx/bookpipeline/internal/pkg/s3store"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func resolveBackupDir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvBackupDir)); dir != "" {
		return config.ResolveRuntimePath(dir, "")
	}
	return config.ResolveRuntimePath("", "backups")
}

func listBackups() []backupItem {
	backupDir := resolveBackupDir()
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil
	}
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return nil
	}
	var items []backupItem
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, backupItem{
			Filename: e.Name(),
			Size:     formatSize(info.Size()),
		})
	}
	if items == nil {
		items = []backupItem{}
	}
	return items
}

func (h *Handler) createLocalBackupArtifact(now time.Time) (*backupArtifact, error) {
	buf, err := h.createBackupZip()
	if err != nil {
		return nil, err
	}
	backupDir := resolveBackupDir()
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("backup-%s.zip", now.Format("2006-01-02T15-04-05"))
	filePath := filepath.Join(backupDir, filename)
	if err := os.WriteFile(filePath, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}

	return &backupArtifact{
		Filename: filename,
		Path:     filePath,
		Buffer:   buf,
	}, nil
}

// createBackupZip exports all tables as BSON into a ZIP archive.
func (h *Handler) createBackupZip() (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)

	exportedTables := make([]string, 0, len(backupTableNames))
	for _, table := range backupTableNames {
		var rows []map[string]interface{}
		if err := h.db.Table(table).Find(&rows).Error; err != nil {
			continue
		}

		payload, err := encodeBSONRows(rows)
		if err != nil {
			continue
		}

		f, err := w.Create(path.Join(backupDBDir, table+".bson"))
		if err != nil {
			continue
		}
		if len(payload) > 0 {
			if _, err := f.Write(payload); err != nil {
				continue
			}
		}

		exportedTables = append(exportedTables, table)
	}

	manifest := backupManifest{
		Format:    backupFormat,
		Version:   backupFormatVersion,
		Engine:    "mysql",
		CreatedAt: time.Now().UTC(),
		Tables:    exportedTables,
	}
	if manifestData, err := bson.Marshal(manifest); err == nil {
		if mf, err := w.Create(backupManifestFile); err == nil {
			_, _ = mf.Write(manifestData)
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

// pruneOldBackups removes the oldest archives beyond keep and reports
// how many files were deleted.
func pruneOldBackups(keep int) int {
	if keep <= 0 {
		return 0
	}
	backupDir := resolveBackupDir()
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return 0
	}

	type archive struct {
		name    string
		modTime time.Time
	}
	archives := make([]archive, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		archives = append(archives, archive{name: e.Name(), modTime: info.ModTime()})
	}
	if len(archives) <= keep {
		return 0
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].modTime.After(archives[j].modTime)
	})

	removed := 0
	for _, old := range archives[keep:] {
		if err := os.Remove(filepath.Join(backupDir, old.name)); err == nil {
			removed++
		}
	}
	return removed
}

// RunScheduledBackup is the auto_backup job body: it writes a local
// archive, uploads it to S3 when credentials are configured, then
// prunes archives beyond the retention count.
func (h *Handler) RunScheduledBackup(ctx context.Context) error {
	if h.cfgSvc == nil {
		return fmt.Errorf("config service is unavailable")
	}
	cfg, err := h.cfgSvc.Get()
	if err != nil {
		return err
	}
	if !cfg.BackupOptions.Enable {
		return nil
	}

	now := time.Now()
	artifact, err := h.createLocalBackupArtifact(now)
	if err != nil {
		return err
	}
	h.logger.Info(fmt.Sprintf("scheduled backup created: %s", artifact.Filename))

	store, err := s3store.New(cfg.S3Options)
	switch {
	case err == nil:
		key := renderBackupObjectKey(cfg.BackupOptions.Path, artifact.Filename, now)
		if _, err := store.Upload(ctx, key, artifact.Buffer.Bytes(), "application/zip"); err != nil {
			h.logger.Warn("scheduled backup s3 upload failed", zap.Error(err))
		}
	case errors.Is(err, s3store.ErrNotConfigured):
		// Local-only deployment.
	default:
		h.logger.Warn("s3 client init failed", zap.Error(err))
	}

	if removed := pruneOldBackups(cfg.BackupOptions.KeepCount); removed > 0 {
		h.logger.Info(fmt.Sprintf("pruned %d old backup archives", removed))
	}
	return nil
}
