package gopher

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TypeTag is the semantic kind of a Gopher item.
//
// Each tag has exactly one protocol code (the first byte of a menu line).
// The code table below is the single source of truth; the reverse lookup is
// derived from it at package initialization.
type TypeTag int

const (
	TypeText TypeTag = iota
	TypeDirectory
	TypeNameserver
	TypeError
	TypeBinHex
	TypeArchive
	TypeSearch
	TypeBinary
	TypeMirror
	TypeGif
	TypeImage
	TypeDocument
	TypeHTML
	TypeInfo
	TypeSound
	TypeVideo
	TypeCalendar

	typeCount
)

// typeCodes maps every tag to its protocol code (RFC 1436 plus the common
// gophernicus extensions). Indexed by TypeTag.
var typeCodes = [typeCount]byte{
	TypeText:       '0',
	TypeDirectory:  '1',
	TypeNameserver: '2',
	TypeError:      '3',
	TypeBinHex:     '4',
	TypeArchive:    '5',
	TypeSearch:     '7',
	TypeBinary:     '9',
	TypeMirror:     '+',
	TypeGif:        'g',
	TypeImage:      'I',
	TypeDocument:   'd',
	TypeHTML:       'h',
	TypeInfo:       'i',
	TypeSound:      's',
	TypeVideo:      ';',
	TypeCalendar:   'c',
}

var typeNames = [typeCount]string{
	TypeText:       "text",
	TypeDirectory:  "directory",
	TypeNameserver: "nameserver",
	TypeError:      "error",
	TypeBinHex:     "binhex",
	TypeArchive:    "archive",
	TypeSearch:     "search",
	TypeBinary:     "binary",
	TypeMirror:     "mirror",
	TypeGif:        "gif",
	TypeImage:      "image",
	TypeDocument:   "document",
	TypeHTML:       "html",
	TypeInfo:       "info",
	TypeSound:      "sound",
	TypeVideo:      "video",
	TypeCalendar:   "calendar",
}

// codeTags is the reverse of typeCodes. Built by buildCodeTags, never edited
// by hand.
var codeTags = buildCodeTags(typeCodes)

func buildCodeTags(codes [typeCount]byte) map[byte]TypeTag {
	reverse := make(map[byte]TypeTag, len(codes))
	for tag, code := range codes {
		if code == 0 {
			panic(fmt.Sprintf("gopher: type %d has no protocol code", tag))
		}
		if prev, dup := reverse[code]; dup {
			panic(fmt.Sprintf("gopher: code %q assigned to both %v and %v", code, prev, TypeTag(tag)))
		}
		reverse[code] = TypeTag(tag)
	}
	return reverse
}

// extensionTypes classifies file extensions (without the dot). Matching is
// case-sensitive: "Z" is compress(1) output while "z" is unknown.
var extensionTypes = map[string]TypeTag{
	"txt":  TypeText,
	"md":   TypeText,
	"pl":   TypeText,
	"py":   TypeText,
	"sh":   TypeText,
	"tcl":  TypeText,
	"c":    TypeText,
	"cpp":  TypeText,
	"h":    TypeText,
	"log":  TypeText,
	"conf": TypeText,
	"php":  TypeText,
	"php3": TypeText,

	"hqx": TypeBinHex,

	"zip": TypeArchive,
	"gz":  TypeArchive,
	"Z":   TypeArchive,
	"tgz": TypeArchive,
	"bz2": TypeArchive,
	"rar": TypeArchive,

	"ics":  TypeCalendar,
	"ical": TypeCalendar,

	"gif": TypeGif,

	"jpg":  TypeImage,
	"jpeg": TypeImage,
	"png":  TypeImage,
	"bmp":  TypeImage,

	"mp3":  TypeSound,
	"wav":  TypeSound,
	"flac": TypeSound,
	"ogg":  TypeSound,

	"avi": TypeVideo,
	"mp4": TypeVideo,
	"mpg": TypeVideo,
	"mov": TypeVideo,
	"qt":  TypeVideo,

	"pdf":  TypeDocument,
	"ps":   TypeDocument,
	"doc":  TypeDocument,
	"docx": TypeDocument,
	"ppt":  TypeDocument,
	"pptx": TypeDocument,
	"xls":  TypeDocument,
	"xlsx": TypeDocument,

	"html": TypeHTML,
	"htm":  TypeHTML,
}

// String returns the lowercase tag name, used in logs and metric labels.
func (t TypeTag) String() string {
	if t < 0 || t >= typeCount {
		return fmt.Sprintf("TypeTag(%d)", int(t))
	}
	return typeNames[t]
}

// Valid reports whether t is one of the defined tags.
func (t TypeTag) Valid() bool {
	return t >= 0 && t < typeCount
}

// ClassifyByCode returns the tag for a protocol code. The second result is
// false for codes outside the table.
func ClassifyByCode(code byte) (TypeTag, bool) {
	tag, ok := codeTags[code]
	return tag, ok
}

// CodeFor returns the protocol code for a tag.
//
// Panics if tag is not a defined TypeTag (programmer error).
func CodeFor(tag TypeTag) byte {
	if !tag.Valid() {
		panic(fmt.Sprintf("gopher: no code for %v", tag))
	}
	return typeCodes[tag]
}

// ClassifyByExtension returns the tag for a file name based on the text after
// its last dot. Names without an extension, dotfiles such as ".profile", and
// unknown extensions are Binary.
func ClassifyByExtension(name string) TypeTag {
	base := filepath.Base(name)
	i := strings.LastIndexByte(base, '.')
	if i <= 0 || i == len(base)-1 {
		return TypeBinary
	}
	if tag, ok := extensionTypes[base[i+1:]]; ok {
		return tag
	}
	return TypeBinary
}
