package backup

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.UserModel{},
		&models.UserSession{},
		&models.APIToken{},
		&models.AuthnModel{},
		&models.OptionModel{},
		&models.ProjectModel{},
		&models.OutlineVersionModel{},
		&models.CharacterModel{},
		&models.ActOutlineModel{},
		&models.ChapterPlanModel{},
		&models.ChapterDraftModel{},
		&models.GenerationLogModel{},
	))
	return db
}

func TestRenderBackupObjectKey(t *testing.T) {
	now := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)

	assert.Equal(t, "backups/2026/08/backup-x.zip", renderBackupObjectKey("", "backup-x.zip", now))
	assert.Equal(t, "2026/08/backup-x.zip", renderBackupObjectKey("{Y}/{m}/{filename}", "backup-x.zip", now))
	assert.Equal(t, "a/25/backup-x.zip", renderBackupObjectKey(`\a//{d}/{filename}`, "backup-x.zip", now))
	assert.Equal(t, "backup-x.zip", renderBackupObjectKey("/", "backup-x.zip", now))
}

func TestCamelToSnake(t *testing.T) {
	cases := map[string]string{
		"projectId":            "project_id",
		"EntriesJSON":          "entries_json",
		"WordCount":            "word_count",
		"last_outline_prompt":  "last_outline_prompt",
		"target-chapter-count": "target_chapter_count",
		"":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, camelToSnake(in), "camelToSnake(%q)", in)
	}
}

func TestResolveRestoreTableName(t *testing.T) {
	assert.Equal(t, "chapter_drafts", resolveRestoreTableName(" Drafts "))
	assert.Equal(t, "user_sessions", resolveRestoreTableName("sessions"))
	assert.Equal(t, "chapter_plans", resolveRestoreTableName("chapter_plans"))
	assert.Equal(t, "", resolveRestoreTableName("posts"))
	assert.Equal(t, "", resolveRestoreTableName(""))
}

func TestNormalizeRestoreColumnName(t *testing.T) {
	assert.Equal(t, "username", normalizeRestoreColumnName("users", "email"))
	assert.Equal(t, "name", normalizeRestoreColumnName("users", "display_name"))
	assert.Equal(t, "password", normalizeRestoreColumnName("users", "password_hash"))
	assert.Equal(t, "premise", normalizeRestoreColumnName("projects", "description"))
	assert.Equal(t, "model_used", normalizeRestoreColumnName("generation_logs", "modelUsed"))
	assert.Equal(t, "entries_json", normalizeRestoreColumnName("chapter_plans", "entriesJson"))
	assert.Equal(t, "", normalizeRestoreColumnName("options", "_id"))
	assert.Equal(t, "id", normalizeRestoreColumnName("projects", "_id"))
	assert.Equal(t, "", normalizeRestoreColumnName("users", "__v"))
}

func TestNormalizeStepValue(t *testing.T) {
	step, ok := normalizeStepValue("three_act")
	require.True(t, ok)
	assert.Equal(t, models.StepActs, step)

	step, ok = normalizeStepValue("manuscript")
	require.True(t, ok)
	assert.Equal(t, models.StepDrafts, step)

	step, ok = normalizeStepValue(" PROMPT ")
	require.True(t, ok)
	assert.Equal(t, models.StepPremise, step)

	step, ok = normalizeStepValue("4")
	require.True(t, ok)
	assert.Equal(t, 4, step)

	_, ok = normalizeStepValue("interlude")
	assert.False(t, ok)
}

func TestCreateBackupZipWritesManifestAndTables(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&models.UserModel{
		Username: "jo",
		Password: "$2a$10$hash",
	}).Error)
	require.NoError(t, db.Create(&models.ProjectModel{
		OwnerID: "owner-1",
		Title:   "Ash and Salt",
		Premise: "A lighthouse keeper inherits a drowned city.",
	}).Error)

	h := NewHandler(db, nil, nil)
	buf, err := h.createBackupZip()
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}
	require.Contains(t, entries, "bookpipeline/manifest.bson")
	require.Contains(t, entries, "bookpipeline/db/projects.bson")
	require.Contains(t, entries, "bookpipeline/db/users.bson")

	rc, err := entries["bookpipeline/manifest.bson"].Open()
	require.NoError(t, err)
	manifestRaw := new(bytes.Buffer)
	_, err = manifestRaw.ReadFrom(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	var manifest backupManifest
	require.NoError(t, bson.Unmarshal(manifestRaw.Bytes(), &manifest))
	assert.Equal(t, backupFormat, manifest.Format)
	assert.Equal(t, backupFormatVersion, manifest.Version)
	assert.Equal(t, "mysql", manifest.Engine)
	assert.Len(t, manifest.Tables, len(backupTableNames))

	rows, err := decodeBackupRows(entries["bookpipeline/db/projects.bson"], "bson")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ash and Salt", rows[0]["title"])
}

func TestRestoreFromZipNormalizesOlderExports(t *testing.T) {
	db := testDB(t)

	// A stale row that the restore must replace.
	require.NoError(t, db.Create(&models.ProjectModel{
		OwnerID: "stale",
		Title:   "Old Draft",
	}).Error)

	userRows, err := encodeBSONRows([]map[string]interface{}{{
		"_id":           "11111111-1111-1111-1111-111111111111",
		"email":         "jo@example.com",
		"display_name":  "Jo Writer",
		"password_hash": "pbkdf2:sha256:600000$abc",
		"created":       "2025-01-02T03:04:05Z",
	}})
	require.NoError(t, err)

	projectRows, err := encodeBSONRows([]map[string]interface{}{{
		"_id":                "22222222-2222-2222-2222-222222222222",
		"ownerId":            "11111111-1111-1111-1111-111111111111",
		"title":              "Ash and Salt",
		"description":        "A lighthouse keeper inherits a drowned city.",
		"currentStep":        "three_act",
		"targetChapterCount": int32(6),
		"createdAt":          "2025-01-02T03:04:05Z",
		"__v":                int32(0),
	}})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for name, payload := range map[string][]byte{
		"bookpipeline/db/users.bson":    userRows,
		"bookpipeline/db/projects.bson": projectRows,
	} {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.NoError(t, RestoreFromZip(db, zr))

	var count int64
	require.NoError(t, db.Model(&models.ProjectModel{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var proj models.ProjectModel
	require.NoError(t, db.First(&proj).Error)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", proj.ID)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", proj.OwnerID)
	assert.Equal(t, "Ash and Salt", proj.Title)
	assert.Equal(t, "A lighthouse keeper inherits a drowned city.", proj.Premise)
	assert.Equal(t, models.StepActs, proj.CurrentStep)
	assert.Equal(t, 6, proj.TargetChapterCount)

	var user models.UserModel
	require.NoError(t, db.First(&user).Error)
	assert.Equal(t, "jo@example.com", user.Username)
	assert.Equal(t, "Jo Writer", user.Name)
	assert.Equal(t, "pbkdf2:sha256:600000$abc", user.Password)
}

func TestMigrateLegacyOptionsFoldsSections(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&models.OptionModel{
		Name:  "backupOptions",
		Value: `{"enable":true,"keepCount":7}`,
	}).Error)
	require.NoError(t, db.Create(&models.OptionModel{
		Name:  "site",
		Value: `{"title":"Imported Room"}`,
	}).Error)

	require.NoError(t, migrateLegacyOptions(db))

	var opt models.OptionModel
	require.NoError(t, db.Where("name = ?", "configs").First(&opt).Error)
	assert.Contains(t, opt.Value, `"keep_count":7`)
	assert.Contains(t, opt.Value, `"enable":true`)
	assert.Contains(t, opt.Value, `"title":"Imported Room"`)
}

func TestPruneOldBackups(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvBackupDir, dir)

	names := []string{"backup-a.zip", "backup-b.zip", "backup-c.zip", "backup-d.zip"}
	base := time.Now().Add(-time.Hour)
	for i, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("zip"), 0o644))
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(p, ts, ts))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	assert.Equal(t, 2, pruneOldBackups(2))

	_, err := os.Stat(filepath.Join(dir, "backup-d.zip"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "backup-c.zip"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "backup-a.zip"))
	assert.True(t, os.IsNotExist(err))

	// keep <= 0 disables pruning.
	assert.Equal(t, 0, pruneOldBackups(0))
}
