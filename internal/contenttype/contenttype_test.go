package contenttype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		token  string
		typ    Type
		mime   string
		binary bool
	}{
		{token: "json", typ: JSON, mime: "application/json"},
		{token: "txt", typ: Text, mime: "text/plain"},
		{token: "html", typ: HTML, mime: "text/html"},
		{token: "css", typ: CSS, mime: "text/css"},
		{token: "gif", typ: GIF, mime: "image/gif", binary: true},
		{token: "jpg", typ: JPEG, mime: "image/jpeg", binary: true},
		{token: "png", typ: PNG, mime: "image/png", binary: true},
		{token: "svg", typ: SVG, mime: "image/svg+xml", binary: true},
		{token: "js", typ: JavaScript, mime: "application/javascript"},
		{token: "woff", typ: WOFF, mime: "font/woff", binary: true},
		{token: "woff2", typ: WOFF2, mime: "font/woff2", binary: true},
		{token: "ttf", typ: TTF, mime: "font/ttf", binary: true},
		{token: "ico", typ: ICO, mime: "image/x-icon", binary: true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			t.Parallel()

			got := Lookup(tt.token)
			assert.Equal(t, tt.typ, got)
			assert.Equal(t, tt.mime, got.MIME())
			assert.Equal(t, tt.binary, got.IsBinary())
			assert.Equal(t, tt.token, got.Token())
			assert.Equal(t, tt.token, got.String())
		})
	}

	assert.Len(t, All(), len(tests))
}

func TestLookup_Unknown(t *testing.T) {
	t.Parallel()

	got := Lookup("exe")
	assert.Equal(t, Unknown, got)
	assert.Equal(t, OctetStream, got.MIME())
	assert.True(t, got.IsBinary())
	assert.Equal(t, "unknown", got.String())
}

func TestNone(t *testing.T) {
	t.Parallel()

	assert.False(t, None.IsSet())
	assert.Empty(t, None.MIME())
	assert.False(t, None.IsBinary())
	assert.NotEqual(t, Unknown, None)
	assert.Equal(t, JSON, None.OrDefault(JSON))
	assert.Equal(t, PNG, PNG.OrDefault(JSON))
	assert.Equal(t, "none", None.String())
}

func TestOutOfRangeBehavesAsUnknown(t *testing.T) {
	t.Parallel()

	bogus := Type(200)
	assert.Equal(t, OctetStream, bogus.MIME())
	assert.True(t, bogus.IsBinary())
	assert.Equal(t, "unknown", bogus.String())
}

func TestFromExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want Type
	}{
		{ext: ".png", want: PNG},
		{ext: "png", want: PNG},
		{ext: ".PNG", want: PNG},
		{ext: ".jpeg", want: JPEG},
		{ext: ".htm", want: HTML},
		{ext: ".mjs", want: JavaScript},
		{ext: ".map", want: JSON},
		{ext: ".text", want: Text},
		{ext: ".woff2", want: WOFF2},
		{ext: ".wasm", want: Unknown},
		{ext: "", want: Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FromExtension(tt.ext))
		})
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	t.Parallel()

	m := All()
	delete(m, "json")

	assert.Equal(t, JSON, Lookup("json"))
	assert.Contains(t, All(), "json")
}
