// Package contenttype holds the fixed table of content types shared by
// route handlers and the static asset server.
package contenttype

import (
	"strings"
)

// Type is a closed enumeration of the content types the process can emit.
// The zero value None means no content type was chosen.
type Type uint8

// Known content types.
const (
	None Type = iota
	JSON
	Text
	HTML
	CSS
	GIF
	JPEG
	PNG
	SVG
	JavaScript
	WOFF
	WOFF2
	TTF
	ICO
	// Unknown is the fallback for anything not enumerated. It is served as
	// application/octet-stream and treated as binary.
	Unknown
)

// OctetStream is the MIME type reported by Unknown.
const OctetStream = "application/octet-stream"

type entry struct {
	token  string
	mime   string
	binary bool
}

var entries = [...]entry{
	None:       {},
	JSON:       {token: "json", mime: "application/json"},
	Text:       {token: "txt", mime: "text/plain"},
	HTML:       {token: "html", mime: "text/html"},
	CSS:        {token: "css", mime: "text/css"},
	GIF:        {token: "gif", mime: "image/gif", binary: true},
	JPEG:       {token: "jpg", mime: "image/jpeg", binary: true},
	PNG:        {token: "png", mime: "image/png", binary: true},
	SVG:        {token: "svg", mime: "image/svg+xml", binary: true},
	JavaScript: {token: "js", mime: "application/javascript"},
	WOFF:       {token: "woff", mime: "font/woff", binary: true},
	WOFF2:      {token: "woff2", mime: "font/woff2", binary: true},
	TTF:        {token: "ttf", mime: "font/ttf", binary: true},
	ICO:        {token: "ico", mime: "image/x-icon", binary: true},
	Unknown:    {token: "", mime: OctetStream, binary: true},
}

var (
	byToken = func() map[string]Type {
		m := make(map[string]Type, len(entries))
		for t := JSON; t < Unknown; t++ {
			m[entries[t].token] = t
		}
		return m
	}()

	extensionAliases = map[string]string{
		"jpeg": "jpg",
		"htm":  "html",
		"mjs":  "js",
		"map":  "json",
		"text": "txt",
	}
)

// Lookup returns the type registered under token, or Unknown.
func Lookup(token string) Type {
	if t, ok := byToken[token]; ok {
		return t
	}
	return Unknown
}

// FromExtension maps a file extension such as ".png" or "PNG" to a type.
// Unrecognized extensions yield Unknown.
func FromExtension(ext string) Type {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if alias, ok := extensionAliases[ext]; ok {
		ext = alias
	}
	return Lookup(ext)
}

// All returns a copy of the token table.
func All() map[string]Type {
	m := make(map[string]Type, len(byToken))
	for k, v := range byToken {
		m[k] = v
	}
	return m
}

func (t Type) entry() entry {
	if int(t) >= len(entries) {
		return entries[Unknown]
	}
	return entries[t]
}

// MIME returns the Content-Type header value. None reports "".
func (t Type) MIME() string {
	return t.entry().mime
}

// IsBinary reports whether bodies of this type are written as raw bytes.
func (t Type) IsBinary() bool {
	return t.entry().binary
}

// Token returns the short registry key, e.g. "png". None and Unknown
// have no token.
func (t Type) Token() string {
	return t.entry().token
}

// IsSet reports whether t names a content type.
func (t Type) IsSet() bool {
	return t != None
}

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Unknown:
		return "unknown"
	}
	if int(t) >= len(entries) {
		return "unknown"
	}
	return t.Token()
}

// OrDefault returns t, or def when t is None.
func (t Type) OrDefault(def Type) Type {
	if t == None {
		return def
	}
	return t
}
