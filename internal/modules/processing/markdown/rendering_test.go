package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdownContentProse(t *testing.T) {
	html := RenderMarkdownContent("# Chapter 1\n\nShe said \"go\" and left.\n\n* * *\n\nDawn came.")

	assert.Contains(t, html, "<h1>Chapter 1</h1>")
	assert.Contains(t, html, "&ldquo;go&rdquo;", "typographer renders curly quotes")
	assert.Contains(t, html, "<hr />", "scene break renders as a rule")
	assert.Contains(t, html, "Dawn came.")
}

func TestRenderMarkdownContentKeepsLineBreaks(t *testing.T) {
	html := RenderMarkdownContent("“Wait,” she said.\nNo answer.")
	assert.Contains(t, html, "<br />")
}

func TestRenderMarkdownContentEmpty(t *testing.T) {
	assert.Empty(t, RenderMarkdownContent("   \n\t"))
}

func TestBuildStructureEscapesTitle(t *testing.T) {
	s := BuildRenderedMarkdownHTMLStructure("<p>x</p>", `Tide & "Wrack"`, "")

	require.Len(t, s.Body, 1)
	assert.Contains(t, s.Body[0], "Tide &amp; &#34;Wrack&#34;")
	assert.Contains(t, s.Body[0], "<p>x</p>")
	require.Len(t, s.Style, 2, "base style plus theme")
	assert.Equal(t, markdownBaseStyle, s.Style[0])
}

func TestRenderDocumentLayout(t *testing.T) {
	structure := RenderedHTMLStructure{
		Body:  []string{"<article>x</article>"},
		Style: []string{"body { margin: 0; }"},
	}

	bare := RenderMarkdownHTMLDocument(structure, RenderDocumentOptions{})
	assert.True(t, strings.HasPrefix(bare, "<!DOCTYPE html>"))
	assert.Contains(t, bare, `<html lang="en">`)
	assert.Contains(t, bare, "<title>Manuscript</title>")
	assert.Contains(t, bare, "<article>x</article>")
	assert.NotContains(t, bare, "<footer")

	full := RenderMarkdownHTMLDocument(structure, RenderDocumentOptions{
		Title:  "Tidewrack",
		Info:   "Exported 2026-01-05",
		Footer: "bookpipeline",
	})
	assert.Contains(t, full, "<title>Tidewrack</title>")
	assert.Contains(t, full, "Exported 2026-01-05")
	assert.Contains(t, full, "<footer")
}

func TestResolveThemeStyle(t *testing.T) {
	assert.Equal(t, markdownThemeManuscript, resolveThemeStyle(""))
	assert.Equal(t, markdownThemeManuscript, resolveThemeStyle("unknown"))
	assert.Equal(t, markdownThemeTypewriter, resolveThemeStyle(" Typewriter "))
	assert.Equal(t, markdownThemeNight, resolveThemeStyle("night"))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "The Drowned City", Filename(" The Drowned City ", "untitled"))
	assert.Equal(t, "a-b", Filename("a/b", "untitled"))
	assert.Equal(t, "untitled", Filename("   ", "untitled"))
	assert.Equal(t, "x", Filename(`"x."`, "untitled"))
}
