// Package health exposes liveness probes plus the admin surfaces for cron
// jobs and on-disk log files.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neperienx/bookpipeline/internal/pkg/cron"
	"github.com/neperienx/bookpipeline/internal/pkg/nativelog"
	pkgredis "github.com/neperienx/bookpipeline/internal/pkg/redis"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
	"gorm.io/gorm"
)

const pingTimeout = 2 * time.Second

type logItem struct {
	Size     string `json:"size"`
	Filename string `json:"filename"`
	Type     string `json:"type"`
	Index    int    `json:"index"`
	Created  int64  `json:"created"`
}

func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, rdb *pkgredis.Client, sched *cron.Scheduler, authMW gin.HandlerFunc) {
	rg.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()

		sqlDB, err := db.DB()
		dbOK := err == nil && sqlDB.PingContext(ctx) == nil

		redisOK := rdb != nil && rdb.Raw().Ping(ctx).Err() == nil

		status := "ok"
		code := http.StatusOK
		if !dbOK || !redisOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":   status,
			"database": dbOK,
			"redis":    redisOK,
		})
	})

	adminHealth := rg.Group("/health", authMW)
	cronGroup := adminHealth.Group("/cron")
	{
		cronGroup.GET("", func(c *gin.Context) {
			items := sched.List()
			byName := make(map[string]cron.ListItem, len(items))
			for _, item := range items {
				byName[item.Name] = item
			}
			response.OK(c, byName)
		})

		cronGroup.POST("/run/:name", func(c *gin.Context) {
			if err := sched.Run(c.Request.Context(), c.Param("name")); err != nil {
				response.NotFoundMsg(c, err.Error())
				return
			}
			response.OK(c, gin.H{"message": "job triggered"})
		})

		cronGroup.GET("/task/:name", func(c *gin.Context) {
			result, err := sched.GetTask(c.Param("name"))
			if err != nil {
				response.NotFoundMsg(c, err.Error())
				return
			}
			response.OK(c, result)
		})
	}

	logGroup := adminHealth.Group("/log")
	{
		logGroup.GET("/list/:type", func(c *gin.Context) {
			logDir, err := resolveLogDir(c.Param("type"))
			if err != nil {
				response.BadRequest(c, err.Error())
				return
			}

			entries, err := os.ReadDir(logDir)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					response.OK(c, []logItem{})
					return
				}
				response.BadRequest(c, "log dir not exists")
				return
			}

			items := make([]logItem, 0, len(entries))
			index := 0
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}

				info, err := entry.Info()
				if err != nil {
					continue
				}

				items = append(items, logItem{
					Size:     formatByteSize(info.Size()),
					Filename: entry.Name(),
					Type:     "log",
					Index:    index,
					Created:  info.ModTime().UnixMilli(),
				})
				index++
			}

			sort.Slice(items, func(i, j int) bool {
				return items[i].Created > items[j].Created
			})
			response.OK(c, items)
		})

		logGroup.GET("/:type", func(c *gin.Context) {
			logDir, err := resolveLogDir(c.Param("type"))
			if err != nil {
				response.BadRequest(c, err.Error())
				return
			}
			if _, err := os.Stat(logDir); err != nil {
				response.BadRequest(c, "log dir not exists")
				return
			}

			filename, ok := sanitizeLogFilename(c.Query("filename"))
			if !ok {
				response.UnprocessableEntity(c, "filename must be string")
				return
			}

			data, err := os.ReadFile(filepath.Join(logDir, filename))
			if err != nil {
				response.BadRequest(c, "log file not exists")
				return
			}

			c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
		})

		logGroup.DELETE("/:type", func(c *gin.Context) {
			logDir, err := resolveLogDir(c.Param("type"))
			if err != nil {
				response.BadRequest(c, err.Error())
				return
			}

			filename, ok := sanitizeLogFilename(c.Query("filename"))
			if !ok {
				response.UnprocessableEntity(c, "filename must be string")
				return
			}

			targetPath := filepath.Join(logDir, filename)
			todayPath := filepath.Join(logDir, todayNativeLogFilename())
			// Today's file is still being appended to; truncate instead of unlink.
			if samePath(targetPath, todayPath) {
				if err := os.WriteFile(targetPath, []byte(""), 0o644); err != nil && !errors.Is(err, os.ErrNotExist) {
					response.InternalError(c, err)
					return
				}
			} else if err := os.Remove(targetPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				response.InternalError(c, err)
				return
			}

			response.NoContent(c)
		})
	}
}

func resolveLogDir(logType string) (string, error) {
	switch logType {
	case "native":
		return nativelog.ResolveDir(), nil
	default:
		return "", fmt.Errorf("invalid log type")
	}
}

func sanitizeLogFilename(raw string) (string, bool) {
	filename := strings.TrimSpace(raw)
	if filename == "" {
		return "", false
	}
	filename = filepath.Base(filename)
	if filename == "." || filename == string(filepath.Separator) {
		return "", false
	}
	return filename, true
}

func formatByteSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func todayNativeLogFilename() string {
	return nativelog.TodayFilename(time.Now())
}

func samePath(a, b string) bool {
	left := filepath.Clean(a)
	right := filepath.Clean(b)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(left, right)
	}
	return left == right
}
