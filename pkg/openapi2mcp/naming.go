package openapi2mcp

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// MaxToolNameLength bounds generated tool names
	MaxToolNameLength = 60
	// MaxDescriptionLength bounds tool descriptions, marker included
	MaxDescriptionLength = 700

	emptyDescription = "No description provided"
	truncationMarker = "..."
)

var stripPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

// NormalizeToolName derives a tool name from a route. GET /users/{id}
// becomes get_users__id__.
func NormalizeToolName(path, method string) string {
	name := strings.TrimPrefix(path, "/")
	// a placeholder segment absorbs its leading separator
	name = strings.ReplaceAll(name, "/{", "{")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "{", "__")
	name = strings.ReplaceAll(name, "}", "__")
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ToLower(method) + "_" + name

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isNameRune(r) {
			b.WriteRune(r)
		}
	}
	name = b.String()

	if len(name) > MaxToolNameLength {
		name = name[:MaxToolNameLength]
	}
	return name
}

func isNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '_' || r == '-'
}

// NormalizeDescription strips HTML, collapses whitespace and bounds the length
func NormalizeDescription(s string) string {
	s = html.UnescapeString(stripPolicy.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return emptyDescription
	}
	if utf8.RuneCountInString(s) <= MaxDescriptionLength {
		return s
	}
	runes := []rune(s)
	keep := MaxDescriptionLength - len(truncationMarker)
	return string(runes[:keep]) + truncationMarker
}

// toolDescription renders the "{METHOD} {path} - {description}" form
func toolDescription(method, path, description string) string {
	return NormalizeDescription(strings.ToUpper(method) + " " + path + " - " + description)
}
