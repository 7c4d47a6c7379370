package gopher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyByExtension(t *testing.T) {
	tests := []struct {
		name string
		want TypeTag
	}{
		{"notes.txt", TypeText},
		{"README.md", TypeText},
		{"script.sh", TypeText},
		{"main.c", TypeText},
		{"server.log", TypeText},
		{"old.hqx", TypeBinHex},
		{"bundle.zip", TypeArchive},
		{"legacy.Z", TypeArchive},
		{"release.tar.gz", TypeArchive},
		{"invite.ics", TypeCalendar},
		{"anim.gif", TypeGif},
		{"photo.jpg", TypeImage},
		{"photo.jpeg", TypeImage},
		{"icon.png", TypeImage},
		{"song.flac", TypeSound},
		{"clip.mov", TypeVideo},
		{"paper.pdf", TypeDocument},
		{"sheet.xlsx", TypeDocument},
		{"index.html", TypeHTML},
		{"/srv/gopher/docs/guide.txt", TypeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyByExtension(tt.name))
		})
	}
}

func TestClassifyByExtension_DefaultsToBinary(t *testing.T) {
	for _, name := range []string{
		"program",
		"archive.xyz",
		"trailingdot.",
		".profile",
		"NOTES.TXT", // case-sensitive
		"legacy.z",
	} {
		assert.Equal(t, TypeBinary, ClassifyByExtension(name), name)
	}
}

func TestCodeTable_IsBijective(t *testing.T) {
	seen := make(map[byte]TypeTag)
	for tag := TypeTag(0); tag < typeCount; tag++ {
		code := CodeFor(tag)
		prev, dup := seen[code]
		require.False(t, dup, "code %q used by %v and %v", code, prev, tag)
		seen[code] = tag

		back, ok := ClassifyByCode(code)
		require.True(t, ok, "code %q not reversible", code)
		assert.Equal(t, tag, back)
	}

	for code := range codeTags {
		tag, ok := ClassifyByCode(code)
		require.True(t, ok)
		assert.Equal(t, code, CodeFor(tag))
	}
	assert.Len(t, codeTags, int(typeCount))
}

func TestClassifyByCode_Known(t *testing.T) {
	tests := map[byte]TypeTag{
		'0': TypeText,
		'1': TypeDirectory,
		'3': TypeError,
		'7': TypeSearch,
		'9': TypeBinary,
		'+': TypeMirror,
		'I': TypeImage,
		'i': TypeInfo,
		';': TypeVideo,
	}
	for code, want := range tests {
		got, ok := ClassifyByCode(code)
		assert.True(t, ok, "code %q", code)
		assert.Equal(t, want, got, "code %q", code)
	}
}

func TestClassifyByCode_Unknown(t *testing.T) {
	for _, code := range []byte{'?', '6', '8', 'T', 'x', 0, '\t'} {
		_, ok := ClassifyByCode(code)
		assert.False(t, ok, "code %q should be unknown", code)
	}
}

func TestBuildCodeTags_PanicsOnDuplicate(t *testing.T) {
	codes := typeCodes
	codes[TypeCalendar] = codes[TypeText]

	assert.Panics(t, func() { buildCodeTags(codes) })
}

func TestTypeTag_String(t *testing.T) {
	assert.Equal(t, "directory", TypeDirectory.String())
	assert.Equal(t, "html", TypeHTML.String())
	assert.Equal(t, "TypeTag(99)", TypeTag(99).String())
	assert.False(t, TypeTag(99).Valid())
	assert.Panics(t, func() { CodeFor(TypeTag(-1)) })
}
