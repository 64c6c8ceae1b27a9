package markdown

import "strings"

// Filename sanitizes a title into a name safe for zip entries, download
// headers and object keys. Extension is the caller's business.
func Filename(title, fallback string) string {
	name := strings.TrimSpace(title)
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	name = strings.ReplaceAll(name, "\"", "")
	name = strings.Trim(name, ". ")
	if name == "" {
		return fallback
	}
	return name
}
