package app

import (
	"context"
	"fmt"
	"time"

	"github.com/neperienx/bookpipeline/internal/modules/storage/backup"
	appconfigs "github.com/neperienx/bookpipeline/internal/modules/system/core/configs"
	pkgcron "github.com/neperienx/bookpipeline/internal/pkg/cron"
	pkgredis "github.com/neperienx/bookpipeline/internal/pkg/redis"
	"github.com/neperienx/bookpipeline/internal/pkg/session"
	"github.com/neperienx/bookpipeline/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// finishedTaskRetention is how long completed queue entries stay listable
// before the purge job removes them.
const finishedTaskRetention = 7 * 24 * time.Hour

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, db *gorm.DB, rc *pkgredis.Client, logger *zap.Logger) {
	cfgSvc := appconfigs.NewService(db)
	taskSvc := taskqueue.NewService(rc)
	backupHandler := backup.NewHandler(db, cfgSvc, rc, backup.WithLogger(logger))
	cronLogger := logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        "prune_sessions",
		Description: "Delete expired and revoked login sessions",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			deleted, err := session.Prune(db, session.DefaultTTL)
			if err != nil {
				cronLogger.Warn("session prune failed", zap.Error(err))
				return err
			}
			cronLogger.Info(fmt.Sprintf("session prune done, %d rows removed", deleted))
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "purge_tasks",
		Description: "Remove finished generation tasks from the queue history",
		Interval:    12 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().Add(-finishedTaskRetention).UnixMilli()
			if err := taskSvc.DeleteCompleted(ctx, cutoff); err != nil {
				cronLogger.Warn("task purge failed", zap.Error(err))
				return err
			}
			cronLogger.Info("task purge done")
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "auto_backup",
		Description: "Back up the database to the local archive directory",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cfg, err := cfgSvc.Get()
			if err != nil {
				return err
			}
			if !cfg.BackupOptions.Enable {
				return nil
			}
			cronLogger.Info("backing up database...")
			if err := backupHandler.RunScheduledBackup(ctx); err != nil {
				cronLogger.Warn("backup failed", zap.Error(err))
				return err
			}
			cronLogger.Info("backup done")
			return nil
		},
	})
}
