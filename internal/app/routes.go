package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neperienx/bookpipeline/internal/middleware"
	"github.com/neperienx/bookpipeline/internal/modules/auth/authn"
	"github.com/neperienx/bookpipeline/internal/modules/auth/user"
	"github.com/neperienx/bookpipeline/internal/modules/gateway/gateway"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"github.com/neperienx/bookpipeline/internal/modules/storage/backup"
	"github.com/neperienx/bookpipeline/internal/modules/story/act"
	"github.com/neperienx/bookpipeline/internal/modules/story/chapter"
	"github.com/neperienx/bookpipeline/internal/modules/story/character"
	"github.com/neperienx/bookpipeline/internal/modules/story/draft"
	"github.com/neperienx/bookpipeline/internal/modules/story/export"
	"github.com/neperienx/bookpipeline/internal/modules/story/outline"
	"github.com/neperienx/bookpipeline/internal/modules/story/project"
	appconfigs "github.com/neperienx/bookpipeline/internal/modules/system/core/configs"
	"github.com/neperienx/bookpipeline/internal/modules/system/core/health"
	"github.com/neperienx/bookpipeline/internal/modules/tasks/crontask"
	"github.com/neperienx/bookpipeline/internal/pkg/bark"
	pkgredis "github.com/neperienx/bookpipeline/internal/pkg/redis"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
	"github.com/neperienx/bookpipeline/internal/pkg/taskqueue"
)

func (a *App) registerRoutes(rc *pkgredis.Client) {
	r := a.router
	db := a.db
	authMW := middleware.Auth(db)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":     "bookpipeline",
		"version":  "1.0.0",
		"homepage": "https://github.com/neperienx/bookpipeline",
		"issues":   "https://github.com/neperienx/bookpipeline/issues",
	}

	apiPrefix := "/api/v2"

	// Shared services
	cfgSvc := appconfigs.NewService(db)
	taskSvc := taskqueue.NewService(rc)
	aiSvc := ai.NewService(cfgSvc)

	// Bark push service for rate-limit alerts.
	barkSvc := bark.New(func() (key, serverURL, siteTitle string) {
		cfg, err := cfgSvc.Get()
		if err != nil {
			return "", "", ""
		}
		return cfg.BarkOptions.Key, cfg.BarkOptions.ServerURL, cfg.Site.Title
	})

	// Rate limiting and idempotence run on every route (requires Redis).
	r.Use(middleware.RateLimit(rc.Raw(), barkSvc))
	r.Use(middleware.Idempotence(rc.Raw()))

	// Root-level endpoints
	root := r.Group("")
	root.Static("/static", a.cfg.StaticDir())

	// Versioned API
	api := r.Group(apiPrefix)
	api.Use(middleware.OptionalAuth(db))
	api.Use(middleware.HTTPCache(rc.Raw(), middleware.HTTPCacheOptions{
		TTL:                    15 * time.Second,
		EnableCDNHeader:        true,
		EnableForceCacheHeader: false,
		Disable:                a.cfg.IsDev(),
		SkipPaths:              httpCacheSkipPaths(apiPrefix),
	}))

	// Infrastructure
	health.RegisterRoutes(api, db, rc, a.sched, authMW)

	// App info endpoint
	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptimeMs := time.Since(a.cfgStartTime()).Milliseconds()
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptimeMs,
			"humanize":  humanizeDuration(time.Duration(uptimeMs) * time.Millisecond),
		})
	})

	cleanCache := func(c *gin.Context) {
		cfgSvc.Invalidate()
		deleted, err := middleware.PurgeHTTPCache(c.Request.Context(), rc.Raw())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"ok":      0,
				"code":    http.StatusInternalServerError,
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": deleted})
	}
	api.GET("/clean_cache", authMW, cleanCache)
	api.GET("/clean_redis", authMW, func(c *gin.Context) {
		rc.Raw().FlushDB(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// Config
	appconfigs.NewHandler(cfgSvc).RegisterRoutes(api, authMW)

	// Auth & User
	user.NewHandler(user.NewService(db), cfgSvc).RegisterRoutes(api, authMW)
	authn.NewHandler(db, cfgSvc, rc).RegisterRoutes(api, authMW)

	// Story pipeline
	project.NewHandler(project.NewService(db)).RegisterRoutes(api, authMW)
	outline.NewHandler(outline.NewService(db, aiSvc)).RegisterRoutes(api, authMW)
	character.NewHandler(character.NewService(db, aiSvc)).RegisterRoutes(api, authMW)
	act.NewHandler(act.NewService(db, aiSvc)).RegisterRoutes(api, authMW)
	chapter.NewHandler(chapter.NewService(db, aiSvc, a.hub, taskSvc, rc, cfgSvc)).RegisterRoutes(api, authMW)
	draft.NewHandler(draft.NewService(db, aiSvc, a.hub, taskSvc)).RegisterRoutes(api, authMW)
	export.NewHandler(export.NewService(db, cfgSvc)).RegisterRoutes(api, authMW)

	// AI provider management
	ai.NewHandler(aiSvc).RegisterRoutes(api, authMW)

	// Backups
	backup.NewHandler(db, cfgSvc, rc, backup.WithLogger(a.logger)).RegisterRoutes(api, authMW)

	// Cron task management (admin)
	crontask.NewHandler(a.sched, taskSvc).RegisterRoutes(api, authMW)

	// WebSocket gateway (socket.io at root, stats mirrored under the API)
	gateway.RegisterRoutes(root, a.hub)
	gateway.RegisterStats(api, a.hub)
}

func httpCacheSkipPaths(apiPrefix string) []string {
	p := strings.TrimSuffix(strings.TrimSpace(apiPrefix), "/")
	if p == "" {
		p = "/api/v2"
	}
	return []string{
		p + "/uptime",
		p + "/clean_cache",
		p + "/clean_redis",
		p + "/health",
		p + "/health/*",
		p + "/user/allow-login",
		p + "/user/check_logged",
		p + "/projects/*",
		p + "/backup",
	}
}
