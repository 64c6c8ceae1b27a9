// Package export assembles a project's manuscript in portable formats:
// plain text, markdown, a standalone HTML document, or a zip of per-act
// markdown files, optionally uploaded to S3.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neperienx/bookpipeline/internal/config"
	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/chapterplan"
	"github.com/neperienx/bookpipeline/internal/modules/processing/markdown"
	"github.com/neperienx/bookpipeline/internal/pkg/s3store"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrBadFormat       = errors.New("format must be one of txt, markdown, html, zip")
	ErrNothingToExport = errors.New("nothing to export yet: plan chapters or draft prose first")
)

// Stand-in body for chapters that are planned but not yet drafted.
const noDraftPlaceholder = "(No draft text available.)"

type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

type S3UploadResult struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

type configSource interface {
	Get() (*config.FullConfig, error)
}

type uploader interface {
	Upload(ctx context.Context, objectKey string, payload []byte, contentType string) (string, error)
}

type Service struct {
	db  *gorm.DB
	cfg configSource // optional; needed for S3 upload and export footers

	// built per upload so runtime S3 option changes take effect
	newUploader func(config.S3Options) (uploader, error)
}

func NewService(db *gorm.DB, cfg configSource) *Service {
	return &Service{
		db:  db,
		cfg: cfg,
		newUploader: func(opts config.S3Options) (uploader, error) {
			return s3store.New(opts)
		},
	}
}

// Export renders the manuscript in the requested format. theme only
// affects the html format.
func (s *Service) Export(ownerID, projectID, format, theme string) (*ExportResult, error) {
	proj, err := s.ownedProject(ownerID, projectID)
	if err != nil {
		return nil, err
	}
	m, err := s.buildManuscript(proj)
	if err != nil {
		return nil, err
	}

	base := markdown.Filename(m.Title, "manuscript")
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "txt":
		return &ExportResult{
			Filename:    base + ".txt",
			ContentType: "text/plain; charset=utf-8",
			Payload:     []byte(renderText(m)),
		}, nil
	case "markdown", "md":
		return &ExportResult{
			Filename:    base + ".md",
			ContentType: "text/markdown; charset=utf-8",
			Payload:     []byte(renderMarkdown(m)),
		}, nil
	case "html":
		return &ExportResult{
			Filename:    base + ".html",
			ContentType: "text/html; charset=utf-8",
			Payload:     []byte(s.renderHTML(m, theme)),
		}, nil
	case "zip":
		payload, err := buildZip(m)
		if err != nil {
			return nil, err
		}
		return &ExportResult{
			Filename:    base + ".zip",
			ContentType: "application/zip",
			Payload:     payload,
		}, nil
	default:
		return nil, ErrBadFormat
	}
}

// UploadToS3 builds the zip export and puts it in the configured
// bucket under exports/{Y}/{m}/.
func (s *Service) UploadToS3(ctx context.Context, ownerID, projectID string) (*S3UploadResult, error) {
	proj, err := s.ownedProject(ownerID, projectID)
	if err != nil {
		return nil, err
	}
	m, err := s.buildManuscript(proj)
	if err != nil {
		return nil, err
	}
	payload, err := buildZip(m)
	if err != nil {
		return nil, err
	}

	if s.cfg == nil {
		return nil, s3store.ErrNotConfigured
	}
	cfg, err := s.cfg.Get()
	if err != nil {
		return nil, err
	}
	up, err := s.newUploader(cfg.S3Options)
	if err != nil {
		return nil, err
	}

	key := time.Now().UTC().Format("exports/2006/01/") + markdown.Filename(m.Title, "manuscript") + ".zip"
	url, err := up.Upload(ctx, key, payload, "application/zip")
	if err != nil {
		return nil, err
	}
	return &S3UploadResult{URL: url, Key: key}, nil
}

// manuscript is the format-neutral assembly the renderers work from.
type manuscript struct {
	Title   string
	Premise string
	Acts    []manuscriptAct
}

type manuscriptAct struct {
	Number   int
	Chapters []manuscriptChapter
}

type manuscriptChapter struct {
	Act     int
	Number  int
	Title   string
	Summary string
	Text    string
}

// buildManuscript folds plans and drafts into reading order. Plan
// entries drive each act's chapter list; acts without a plan fall back
// to whatever drafts exist there.
func (s *Service) buildManuscript(proj *models.ProjectModel) (*manuscript, error) {
	title := strings.TrimSpace(proj.Title)
	if title == "" {
		title = "Untitled Project"
	}
	m := &manuscript{Title: title, Premise: strings.TrimSpace(proj.Premise)}

	var plans []models.ChapterPlanModel
	if err := s.db.Where("project_id = ?", proj.ID).Find(&plans).Error; err != nil {
		return nil, err
	}
	entriesByAct := make(map[int][]chapterplan.ChapterEntry, len(plans))
	for _, plan := range plans {
		entriesByAct[plan.Act] = chapterplan.Load([]byte(plan.EntriesJSON), plan.RenderedText)
	}

	var drafts []models.ChapterDraftModel
	if err := s.db.Where("project_id = ?", proj.ID).
		Order("act ASC, chapter ASC").Find(&drafts).Error; err != nil {
		return nil, err
	}
	type draftKey struct{ act, chapter int }
	draftByKey := make(map[draftKey]*models.ChapterDraftModel, len(drafts))
	for i := range drafts {
		d := &drafts[i]
		draftByKey[draftKey{d.Act, d.Chapter}] = d
	}

	for act := 1; act <= models.ActCount; act++ {
		var chapters []manuscriptChapter
		if entries := entriesByAct[act]; len(entries) > 0 {
			for _, entry := range entries {
				ch := manuscriptChapter{
					Act:     act,
					Number:  entry.Number,
					Title:   entry.Title,
					Summary: entry.Summary,
				}
				if d := draftByKey[draftKey{act, entry.Number}]; d != nil {
					ch.Text = d.Text
				}
				chapters = append(chapters, ch)
			}
		} else {
			for _, d := range drafts {
				if d.Act != act {
					continue
				}
				chapters = append(chapters, manuscriptChapter{
					Act:     act,
					Number:  d.Chapter,
					Title:   d.Title,
					Summary: d.Summary,
					Text:    d.Text,
				})
			}
		}
		if len(chapters) > 0 {
			m.Acts = append(m.Acts, manuscriptAct{Number: act, Chapters: chapters})
		}
	}

	if len(m.Acts) == 0 {
		return nil, ErrNothingToExport
	}
	return m, nil
}

func chapterHeading(ch manuscriptChapter) string {
	title := strings.TrimSpace(ch.Title)
	if title == "" {
		title = "Untitled Chapter"
	}
	return fmt.Sprintf("Act %d — Chapter %d: %s", ch.Act, ch.Number, title)
}

func chapterBody(ch manuscriptChapter) string {
	if text := strings.TrimSpace(ch.Text); text != "" {
		return text
	}
	return noDraftPlaceholder
}

func renderText(m *manuscript) string {
	var b strings.Builder
	b.WriteString(m.Title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", len([]rune(m.Title))))
	b.WriteString("\n\n")
	if m.Premise != "" {
		b.WriteString(m.Premise)
		b.WriteString("\n\n")
	}

	for _, act := range m.Acts {
		for _, ch := range act.Chapters {
			b.WriteString(chapterHeading(ch))
			b.WriteString("\n")
			if summary := strings.TrimSpace(ch.Summary); summary != "" {
				b.WriteString("Outline: ")
				b.WriteString(summary)
				b.WriteString("\n")
			}
			b.WriteString("\n")
			b.WriteString(chapterBody(ch))
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// renderActChapters emits the `##` chapter sections shared by the full
// and per-act markdown renders.
func renderActChapters(act manuscriptAct) string {
	var b strings.Builder
	for _, ch := range act.Chapters {
		fmt.Fprintf(&b, "## %s\n\n", chapterHeading(ch))
		if summary := strings.TrimSpace(ch.Summary); summary != "" {
			b.WriteString("Outline: ")
			b.WriteString(summary)
			b.WriteString("\n\n")
		}
		b.WriteString(chapterBody(ch))
		b.WriteString("\n\n")
	}
	return b.String()
}

func renderMarkdown(m *manuscript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.Title)
	if m.Premise != "" {
		b.WriteString(m.Premise)
		b.WriteString("\n\n")
	}
	for _, act := range m.Acts {
		b.WriteString(renderActChapters(act))
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderActMarkdown(m *manuscript, act manuscriptAct) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — Act %d\n\n", m.Title, act.Number)
	b.WriteString(renderActChapters(act))
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// renderHTML converts the manuscript body to HTML and wraps it in the
// standalone document template. The title heading comes from the
// template, so the body markdown starts at the chapter sections.
func (s *Service) renderHTML(m *manuscript, theme string) string {
	var b strings.Builder
	if m.Premise != "" {
		b.WriteString(m.Premise)
		b.WriteString("\n\n")
	}
	for _, act := range m.Acts {
		b.WriteString(renderActChapters(act))
	}

	html := markdown.RenderMarkdownContent(b.String())
	structure := markdown.BuildRenderedMarkdownHTMLStructure(html, m.Title, theme)

	footer := ""
	if s.cfg != nil {
		if cfg, err := s.cfg.Get(); err == nil {
			footer = strings.TrimSpace(cfg.Site.Title)
		}
	}
	return markdown.RenderMarkdownHTMLDocument(structure, markdown.RenderDocumentOptions{
		Title:  m.Title,
		Info:   "Exported " + time.Now().UTC().Format("2006-01-02"),
		Footer: footer,
	})
}

func buildZip(m *manuscript) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)

	for _, act := range m.Acts {
		f, err := w.Create(fmt.Sprintf("act-%d.md", act.Number))
		if err != nil {
			return nil, err
		}
		if _, err := f.Write([]byte(renderActMarkdown(m, act))); err != nil {
			return nil, err
		}
	}

	f, err := w.Create("manuscript.txt")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write([]byte(renderText(m))); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Service) ownedProject(ownerID, projectID string) (*models.ProjectModel, error) {
	var proj models.ProjectModel
	if err := s.db.First(&proj, "id = ? AND owner_id = ?", projectID, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &proj, nil
}
