package backup

import (
	"archive/zip"
	"bytes"
	"time"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/system/core/configs"
	pkgredis "github.com/neperienx/bookpipeline/internal/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const backupRootDir = "bookpipeline"
const backupDBDir = backupRootDir + "/db"
const backupManifestFile = backupRootDir + "/manifest.bson"
const backupFormat = "bookpipeline-bson"
const backupFormatVersion = 1
const defaultS3PathTemplate = "backups/{Y}/{m}/{filename}"
const EnvBackupDir = "BP_BACKUP_DIR"

var backupTableNames = []string{
	"users",
	"user_sessions",
	"api_tokens",
	"authn_credentials",
	"options",
	"projects",
	"outline_versions",
	"characters",
	"act_outlines",
	"chapter_plans",
	"chapter_drafts",
	"generation_logs",
}

var backupTableNameSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(backupTableNames))
	for _, table := range backupTableNames {
		set[table] = struct{}{}
	}
	return set
}()

var restoreTableAliases = map[string]string{
	"sessions":       "user_sessions",
	"tokens":         "api_tokens",
	"authns":         "authn_credentials",
	"outlines":       "outline_versions",
	"acts":           "act_outlines",
	"plans":          "chapter_plans",
	"drafts":         "chapter_drafts",
	"generation_log": "generation_logs",
}

var restoreColumnAliases = map[string]string{
	"_id":            "id",
	"created":        "created_at",
	"modified":       "updated_at",
	"createdat":      "created_at",
	"updatedat":      "updated_at",
	"ownerid":        "owner_id",
	"userid":         "user_id",
	"projectid":      "project_id",
	"ipaddress":      "ip",
	"useragent":      "ua",
	"modelused":      "model_used",
	"wordcount":      "word_count",
	"sortorder":      "sort_order",
	"errortext":      "error_text",
	"durationms":     "duration_ms",
	"entriesjson":    "entries_json",
	"renderedtext":   "rendered_text",
	"requestedcount": "requested_count",
	"expiresat":      "expires_at",
	"revokedat":      "revoked_at",
	"expiredat":      "expired_at",
}

var restoreColumnAliasesByTable = map[string]map[string]string{
	"users": {
		// email was the login identity in older exports; username is
		// the NOT NULL login column here.
		"email":         "username",
		"display_name":  "name",
		"password_hash": "password",
	},
	"projects": {
		"description": "premise",
	},
}

// restoreStepAliases maps step names from older exports, where
// projects.current_step was a string, onto the numeric pipeline steps.
var restoreStepAliases = map[string]int{
	"prompt":     models.StepPremise,
	"premise":    models.StepPremise,
	"outline":    models.StepOutline,
	"characters": models.StepCharacters,
	"three_act":  models.StepActs,
	"acts":       models.StepActs,
	"chapters":   models.StepChapters,
	"scenes":     models.StepChapters,
	"manuscript": models.StepDrafts,
	"drafts":     models.StepDrafts,
	"complete":   models.StepComplete,
}

var legacyOptionKeyAliases = map[string]string{
	"site":              "site",
	"url":               "url",
	"ai":                "ai",
	"generation":        "generation",
	"generationoptions": "generation",
	"authsecurity":      "auth_security",
	"security":          "auth_security",
	"backupoptions":     "backup_options",
	"backup":            "backup_options",
	"s3options":         "s3_options",
	"s3":                "s3_options",
	"barkoptions":       "bark_options",
	"bark":              "bark_options",
}

// Handler is the HTTP handler for backup operations.
type Handler struct {
	db     *gorm.DB
	cfgSvc *configs.Service
	rc     *pkgredis.Client
	logger *zap.Logger
}

type backupManifest struct {
	Format    string    `bson:"format"`
	Version   int       `bson:"version"`
	Engine    string    `bson:"engine"`
	CreatedAt time.Time `bson:"created_at"`
	Tables    []string  `bson:"tables"`
}

type backupEntryCandidate struct {
	File   *zip.File
	Format string
}

type tableColumn struct {
	DBType string
}

type backupItem struct {
	Filename string `json:"filename"`
	Size     string `json:"size"`
}

type backupArtifact struct {
	Filename string
	Path     string
	Buffer   *bytes.Buffer
}
