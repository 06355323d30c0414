// Package pages carries the static HTML and CSS the server hands out, baked
// into the binary. The redirect and not-found pages are plain text
// templates: substitution replaces the two placeholder markers, nothing
// else is templated.
package pages

import (
	_ "embed"
	"html"
	"strings"
)

const (
	tokenMarker = "REDIRECTION_TOKEN"
	linkMarker  = "REDIRECTION_LINK"
)

//go:embed redirect.html
var redirectPage string

//go:embed 404.html
var notFoundPage string

//go:embed index.html
var indexPage string

//go:embed style.css
var styleSheet string

// RenderRedirect fills the redirect page with a token and its destination.
// Both come from outside the binary, so they are HTML-escaped on the way in.
func RenderRedirect(token, link string) string {
	out := strings.ReplaceAll(redirectPage, tokenMarker, html.EscapeString(token))
	return strings.ReplaceAll(out, linkMarker, html.EscapeString(link))
}

// RenderNotFound fills the not-found page with the token that missed.
func RenderNotFound(token string) string {
	return strings.ReplaceAll(notFoundPage, tokenMarker, html.EscapeString(token))
}

func Index() string {
	return indexPage
}

func StyleSheet() string {
	return styleSheet
}
