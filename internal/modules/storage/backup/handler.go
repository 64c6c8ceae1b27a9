// Package backup dumps every table to BSON inside a zip archive and
// restores such archives, including exports from older deployments
// with camelCase column names. Archives live in the local backup
// directory and can optionally be mirrored to S3.
package backup

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neperienx/bookpipeline/internal/modules/system/core/configs"
	pkgredis "github.com/neperienx/bookpipeline/internal/pkg/redis"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
	"github.com/neperienx/bookpipeline/internal/pkg/s3store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewHandler(db *gorm.DB, cfgSvc *configs.Service, rc *pkgredis.Client, opts ...HandlerOption) *Handler {
	h := &Handler{db: db, cfgSvc: cfgSvc, rc: rc, logger: zap.NewNop()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// HandlerOption configures a backup Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger for the backup handler.
func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l.Named("BackupService")
		}
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/backup", authMW)

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:filename", h.download)
	g.POST("/rollback", h.uploadAndRestore)
	g.POST("/rollback/:filename", h.rollback)
	g.POST("/upload-to-s3", h.uploadToS3)
	g.DELETE("", h.delete)
	g.DELETE("/:filename", h.deleteOne)
}

// GET /backup
func (h *Handler) list(c *gin.Context) {
	items := listBackups()
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// POST /backup
func (h *Handler) create(c *gin.Context) {
	h.logger.Info("creating database backup")
	artifact, err := h.createLocalBackupArtifact(time.Now())
	if err != nil {
		h.logger.Warn("backup failed", zap.Error(err))
		response.InternalError(c, err)
		return
	}
	h.logger.Info(fmt.Sprintf("backup created: %s", artifact.Filename))
	response.Created(c, backupItem{
		Filename: artifact.Filename,
		Size:     formatSize(int64(artifact.Buffer.Len())),
	})
}

// GET /backup/:filename
func (h *Handler) download(c *gin.Context) {
	filename := filepath.Base(c.Param("filename"))
	if !strings.HasSuffix(filename, ".zip") {
		response.BadRequest(c, "invalid filename")
		return
	}
	backupDir := resolveBackupDir()
	path := filepath.Join(backupDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			response.NotFoundMsg(c, "backup archive not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/zip", data)
}

// POST /backup/rollback
func (h *Handler) uploadAndRestore(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file")
		return
	}

	src, err := file.Open()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		response.BadRequest(c, "invalid zip file")
		return
	}

	if err := RestoreFromZip(h.db, zr); err != nil {
		h.logger.Warn("restore failed", zap.Error(err))
		response.InternalError(c, err)
		return
	}
	h.invalidateRuntimeCaches(c)
	h.logger.Info("restore complete (uploaded archive)")
	response.OK(c, gin.H{"message": "restore successful"})
}

// POST /backup/rollback/:filename
func (h *Handler) rollback(c *gin.Context) {
	filename := filepath.Base(c.Param("filename"))
	backupDir := resolveBackupDir()
	path := filepath.Join(backupDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			response.NotFoundMsg(c, "backup archive not found")
			return
		}
		response.InternalError(c, err)
		return
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		response.BadRequest(c, "invalid zip file")
		return
	}

	h.logger.Info(fmt.Sprintf("rolling back to %s", filename))
	if err := RestoreFromZip(h.db, zr); err != nil {
		h.logger.Warn("rollback failed", zap.Error(err))
		response.InternalError(c, err)
		return
	}
	h.invalidateRuntimeCaches(c)
	h.logger.Info("rollback complete")
	response.OK(c, gin.H{"message": "rollback successful"})
}

func (h *Handler) invalidateRuntimeCaches(c *gin.Context) {
	if h.cfgSvc != nil {
		h.cfgSvc.Invalidate()
	}
	if h.rc != nil {
		_ = h.rc.Raw().FlushDB(c.Request.Context())
	}
}

// DELETE /backup
func (h *Handler) delete(c *gin.Context) {
	files := strings.TrimSpace(c.Query("files"))

	var body struct {
		Files string `json:"files"`
	}
	if files == "" {
		_ = c.ShouldBindJSON(&body)
		files = strings.TrimSpace(body.Files)
	}
	if files == "" {
		response.BadRequest(c, "missing files")
		return
	}

	backupDir := resolveBackupDir()
	filenames := strings.Split(files, ",")
	for _, name := range filenames {
		name = strings.TrimSpace(filepath.Base(name))
		if name == "" || !strings.HasSuffix(name, ".zip") {
			continue
		}
		os.Remove(filepath.Join(backupDir, name))
	}
	response.NoContent(c)
}

func (h *Handler) deleteOne(c *gin.Context) {
	filename := strings.TrimSpace(filepath.Base(c.Param("filename")))
	if filename == "" || !strings.HasSuffix(filename, ".zip") {
		response.BadRequest(c, "invalid filename")
		return
	}
	backupDir := resolveBackupDir()
	_ = os.Remove(filepath.Join(backupDir, filename))
	response.NoContent(c)
}

// POST /backup/upload-to-s3
func (h *Handler) uploadToS3(c *gin.Context) {
	if h.cfgSvc == nil {
		response.InternalError(c, fmt.Errorf("config service is unavailable"))
		return
	}

	cfg, err := h.cfgSvc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if cfg == nil {
		response.InternalError(c, fmt.Errorf("configs not initialized"))
		return
	}
	if !cfg.BackupOptions.Enable {
		// Backups disabled means no-op.
		response.NoContent(c)
		return
	}

	store, err := s3store.New(cfg.S3Options)
	if err != nil {
		if errors.Is(err, s3store.ErrNotConfigured) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}

	now := time.Now()
	artifact, err := h.createLocalBackupArtifact(now)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	key := renderBackupObjectKey(cfg.BackupOptions.Path, artifact.Filename, now)
	h.logger.Info(fmt.Sprintf("uploading backup to s3: %s", key))
	if _, err := store.Upload(c.Request.Context(), key, artifact.Buffer.Bytes(), "application/zip"); err != nil {
		h.logger.Warn("s3 upload failed", zap.Error(err))
		response.InternalError(c, err)
		return
	}

	h.logger.Info("s3 upload complete")
	response.NoContent(c)
}
