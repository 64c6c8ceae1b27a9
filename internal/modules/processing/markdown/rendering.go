// Package markdown renders draft prose to HTML and assembles the
// standalone HTML documents used by manuscript export.
package markdown

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

//go:embed assets/markdown/markdown.css
var markdownBaseStyle string

//go:embed assets/markdown/theme/manuscript.css
var markdownThemeManuscript string

//go:embed assets/markdown/theme/typewriter.css
var markdownThemeTypewriter string

//go:embed assets/markdown/theme/night.css
var markdownThemeNight string

// RenderedHTMLStructure is the pieces of a rendered document before
// they are folded into one HTML file.
type RenderedHTMLStructure struct {
	Body  []string `json:"body"`
	Style []string `json:"style"`
}

type RenderDocumentOptions struct {
	Title  string
	Info   string
	Footer string
}

// The engine favors prose: Typographer turns straight quotes and dashes
// into their typeset forms, hard wraps keep intra-paragraph line breaks
// (dialogue, verse), and `* * *` scene breaks render as hr elements.
var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Typographer,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

func RenderMarkdownContent(markdownText string) string {
	text := strings.TrimSpace(markdownText)
	if text == "" {
		return ""
	}

	var out bytes.Buffer
	if err := markdownEngine.Convert([]byte(text), &out); err != nil {
		return template.HTMLEscapeString(text)
	}
	return out.String()
}

func BuildRenderedMarkdownHTMLStructure(html, title, theme string) RenderedHTMLStructure {
	return RenderedHTMLStructure{
		Body: []string{
			fmt.Sprintf("<article><h1>%s</h1>%s</article>", template.HTMLEscapeString(title), html),
		},
		Style: []string{
			markdownBaseStyle,
			resolveThemeStyle(theme),
		},
	}
}

func RenderMarkdownHTMLDocument(structure RenderedHTMLStructure, options RenderDocumentOptions) string {
	var b strings.Builder
	b.Grow(4096)

	title := template.HTMLEscapeString(strings.TrimSpace(options.Title))
	if title == "" {
		title = "Manuscript"
	}

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n")
	b.WriteString("  <head>\n")
	b.WriteString("    <meta charset=\"UTF-8\" />\n")
	b.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\" />\n")
	b.WriteString("    <meta name=\"referrer\" content=\"no-referrer\" />\n")
	b.WriteString("    <style>\n")
	b.WriteString(strings.Join(structure.Style, "\n"))
	b.WriteString("\n    </style>\n")
	b.WriteString("    <title>")
	b.WriteString(title)
	b.WriteString("</title>\n")
	b.WriteString("  </head>\n\n")
	b.WriteString("  <body class=\"markdown-body\" id=\"write\">\n")

	if info := strings.TrimSpace(options.Info); info != "" {
		b.WriteString("    <p style=\"margin: 20px auto; text-align: center; opacity: 0.8;\">\n")
		b.WriteString("      ")
		b.WriteString(info)
		b.WriteString("\n")
		b.WriteString("    </p>\n")
	}

	b.WriteString("    ")
	b.WriteString(strings.Join(structure.Body, "\n    "))
	b.WriteString("\n")

	if footer := strings.TrimSpace(options.Footer); footer != "" {
		b.WriteString("    <footer style=\"text-align: right; padding: 2em 0; font-size: 0.8em; line-height: 2;\">\n")
		b.WriteString("      ")
		b.WriteString(footer)
		b.WriteString("\n")
		b.WriteString("    </footer>\n")
	}

	b.WriteString("  </body>\n")
	b.WriteString("</html>")

	return b.String()
}

func resolveThemeStyle(theme string) string {
	switch strings.ToLower(strings.TrimSpace(theme)) {
	case "typewriter":
		return markdownThemeTypewriter
	case "night":
		return markdownThemeNight
	default:
		return markdownThemeManuscript
	}
}
