package signature

import (
	"fmt"
	"sort"
)

// Size bounds for builtin signatures, in bytes. The maximums come from
// plausible upper sizes observed for each format in the wild and bound
// buffer-mode carving; tree-mode recovery always takes the whole file.
//
// Builtin signatures deliberately carry no minimum size: a minimum would
// silently drop small but real files (thumbnails, tiny PNGs) and carves
// bounded by a close next candidate. Deployments that want a noise floor
// set minimums per tag in the config file.
const (
	maxJPEGSize = 10 << 20  // 10 MiB
	maxPNGSize  = 5 << 20   // 5 MiB
	maxPDFSize  = 50 << 20  // 50 MiB
	maxDocSize  = 100 << 20 // 100 MiB
	maxMP4Size  = 5 << 30   // 5 GiB
	maxMP3Size  = 20 << 20  // 20 MiB
)

// FormatSignature describes one recoverable file format: its tag, the
// magic byte patterns that identify it, and optional plausible size
// bounds used by the carver.
type FormatSignature struct {
	// Tag is the short format identifier (e.g. "jpg", "sqlite").
	// Tags are unique within a registry.
	Tag string

	// Patterns holds the alternative magic byte sequences, each non-empty,
	// in priority order. A source matches the signature when any pattern
	// is a prefix of the bytes at the match offset.
	Patterns [][]byte

	// MinSize is the minimum plausible size in bytes. Extractions below
	// it are dropped as false-positive noise. Zero means no minimum.
	MinSize int64

	// MaxSize is the maximum plausible size in bytes, bounding
	// buffer-mode carves. Zero means no maximum.
	MaxSize int64

	// Extension is the file extension for recovered artifacts,
	// without the dot.
	Extension string

	// Description is the human-readable format name for reports.
	Description string
}

// Validate checks the signature for the misconfigurations that would make
// matching nondeterministic. These are the only fatal errors in the
// engine (error taxonomy category 5).
func (s FormatSignature) Validate() error {
	if s.Tag == "" {
		return ErrEmptyTag
	}
	if len(s.Patterns) == 0 {
		return fmt.Errorf("tag %q: %w", s.Tag, ErrNoPatterns)
	}
	for i, p := range s.Patterns {
		if len(p) == 0 {
			return fmt.Errorf("tag %q pattern %d: %w", s.Tag, i, ErrEmptyPattern)
		}
	}
	if s.MinSize < 0 || s.MaxSize < 0 || (s.MaxSize > 0 && s.MinSize > s.MaxSize) {
		return fmt.Errorf("tag %q: %w", s.Tag, ErrInvalidSizeBounds)
	}
	return nil
}

// Registry holds format signatures in registration order. The order is
// part of the matching contract: when two patterns of equal length match
// at the same offset, the earlier-registered tag wins. A registry is
// immutable once handed to a Matcher or Scanner and is safe for
// concurrent readers.
type Registry struct {
	sigs          []FormatSignature
	byTag         map[string]int
	maxPatternLen int
}

// NewRegistry creates a registry seeded with the builtin signature table.
// The builtin table is validated by tests; an invalid entry is a
// programming error and panics.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for _, sig := range builtinSignatures() {
		if err := r.Register(sig); err != nil {
			panic(fmt.Sprintf("builtin signature table is invalid: %v", err))
		}
	}
	return r
}

// NewEmptyRegistry creates a registry with no signatures. Callers
// register their own; mainly useful for tests and special-purpose scans.
func NewEmptyRegistry() *Registry {
	return &Registry{
		byTag: make(map[string]int),
	}
}

// Register adds a signature to the registry. It returns a sentinel error
// (wrapped with the offending tag) when the signature is malformed or the
// tag is already present.
func (r *Registry) Register(sig FormatSignature) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if _, ok := r.byTag[sig.Tag]; ok {
		return fmt.Errorf("tag %q: %w", sig.Tag, ErrDuplicateTag)
	}
	r.byTag[sig.Tag] = len(r.sigs)
	r.sigs = append(r.sigs, sig)
	for _, p := range sig.Patterns {
		if len(p) > r.maxPatternLen {
			r.maxPatternLen = len(p)
		}
	}
	return nil
}

// SetSizeBounds overrides the size bounds of a registered tag. Used by
// the config layer to apply per-deployment thresholds without replacing
// the builtin patterns.
func (r *Registry) SetSizeBounds(tag string, minSize, maxSize int64) error {
	idx, ok := r.byTag[tag]
	if !ok {
		return fmt.Errorf("tag %q: %w", tag, ErrUnknownTag)
	}
	if minSize < 0 || maxSize < 0 || (maxSize > 0 && minSize > maxSize) {
		return fmt.Errorf("tag %q: %w", tag, ErrInvalidSizeBounds)
	}
	r.sigs[idx].MinSize = minSize
	r.sigs[idx].MaxSize = maxSize
	return nil
}

// Lookup returns the signature registered under tag.
func (r *Registry) Lookup(tag string) (FormatSignature, bool) {
	idx, ok := r.byTag[tag]
	if !ok {
		return FormatSignature{}, false
	}
	return r.sigs[idx], true
}

// Signatures returns all signatures in registration order. The returned
// slice is a copy; the registry itself stays immutable.
func (r *Registry) Signatures() []FormatSignature {
	out := make([]FormatSignature, len(r.sigs))
	copy(out, r.sigs)
	return out
}

// Tags returns all registered tags in registration order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.sigs))
	for _, sig := range r.sigs {
		tags = append(tags, sig.Tag)
	}
	return tags
}

// SortedTags returns all registered tags in lexical order, for display.
func (r *Registry) SortedTags() []string {
	tags := r.Tags()
	sort.Strings(tags)
	return tags
}

// Len returns the number of registered signatures.
func (r *Registry) Len() int {
	return len(r.sigs)
}

// MaxPatternLen returns the length of the longest registered pattern.
// Scanners size their header reads with it.
func (r *Registry) MaxPatternLen() int {
	return r.maxPatternLen
}

// builtinSignatures returns the builtin signature table. Registration
// order is part of the compatibility contract: equal-length pattern ties
// resolve to the earlier entry. Formats that share an identical container
// magic (OLE, ZIP, RIFF) are registered once under the first tag with the
// sibling formats named in the description.
func builtinSignatures() []FormatSignature {
	return []FormatSignature{
		// Images
		{
			Tag: "jpg",
			Patterns: [][]byte{
				{0xFF, 0xD8, 0xFF, 0xE0},
				{0xFF, 0xD8, 0xFF, 0xE1},
				{0xFF, 0xD8, 0xFF, 0xE2},
			},
			MaxSize:     maxJPEGSize,
			Extension:   "jpg",
			Description: "JPEG image",
		},
		{
			Tag:         "png",
			Patterns:    [][]byte{{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
			MaxSize:     maxPNGSize,
			Extension:   "png",
			Description: "PNG image",
		},
		{
			Tag:         "gif",
			Patterns:    [][]byte{[]byte("GIF87a"), []byte("GIF89a")},
			Extension:   "gif",
			Description: "GIF image",
		},
		{
			Tag:         "bmp",
			Patterns:    [][]byte{[]byte("BM")},
			Extension:   "bmp",
			Description: "BMP image",
		},
		{
			Tag:         "ico",
			Patterns:    [][]byte{{0x00, 0x00, 0x01, 0x00}},
			Extension:   "ico",
			Description: "Windows icon",
		},
		{
			Tag:         "tiff",
			Patterns:    [][]byte{{0x49, 0x49, 0x2A, 0x00}, {0x4D, 0x4D, 0x00, 0x2A}},
			Extension:   "tiff",
			Description: "TIFF image",
		},

		// Documents
		{
			Tag:         "pdf",
			Patterns:    [][]byte{[]byte("%PDF")},
			MaxSize:     maxPDFSize,
			Extension:   "pdf",
			Description: "PDF document",
		},
		{
			Tag:         "doc",
			Patterns:    [][]byte{{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}},
			MaxSize:     maxDocSize,
			Extension:   "doc",
			Description: "OLE compound document (DOC/XLS/PPT)",
		},
		{
			Tag:         "rtf",
			Patterns:    [][]byte{[]byte(`{\rtf`)},
			Extension:   "rtf",
			Description: "RTF document",
		},
		{
			Tag: "txt",
			Patterns: [][]byte{
				{0xEF, 0xBB, 0xBF}, // UTF-8 BOM
				{0xFF, 0xFE},       // UTF-16 LE BOM
				{0xFE, 0xFF},       // UTF-16 BE BOM
			},
			Extension:   "txt",
			Description: "Unicode text (BOM)",
		},
		{
			Tag:         "html",
			Patterns:    [][]byte{[]byte("<!DOCTYPE html"), []byte("<html")},
			Extension:   "html",
			Description: "HTML document",
		},

		// Archives
		{
			Tag:         "zip",
			Patterns:    [][]byte{{0x50, 0x4B, 0x03, 0x04}, {0x50, 0x4B, 0x05, 0x06}},
			Extension:   "zip",
			Description: "ZIP archive (also DOCX/XLSX/PPTX)",
		},
		{
			Tag:         "rar",
			Patterns:    [][]byte{{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07}},
			Extension:   "rar",
			Description: "RAR archive",
		},
		{
			Tag:         "7z",
			Patterns:    [][]byte{{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}},
			Extension:   "7z",
			Description: "7-Zip archive",
		},
		{
			// Real tar archives carry "ustar" at offset 257; a prefix hit
			// means a truncated or headerless fragment.
			Tag:         "tar",
			Patterns:    [][]byte{[]byte("ustar")},
			Extension:   "tar",
			Description: "tar archive fragment",
		},
		{
			Tag:         "gz",
			Patterns:    [][]byte{{0x1F, 0x8B}},
			Extension:   "gz",
			Description: "gzip archive",
		},

		// Media
		{
			Tag: "mp4",
			Patterns: [][]byte{
				{0x00, 0x00, 0x00, 0x18, 0x66, 0x74, 0x79, 0x70},
				{0x00, 0x00, 0x00, 0x1C, 0x66, 0x74, 0x79, 0x70},
			},
			MaxSize:     maxMP4Size,
			Extension:   "mp4",
			Description: "MP4 video",
		},
		{
			Tag:         "mov",
			Patterns:    [][]byte{{0x00, 0x00, 0x00, 0x14, 0x66, 0x74, 0x79, 0x70}},
			Extension:   "mov",
			Description: "QuickTime video",
		},
		{
			Tag: "mp3",
			Patterns: [][]byte{
				[]byte("ID3"),
				{0xFF, 0xFB},
				{0xFF, 0xF3},
				{0xFF, 0xF2},
			},
			MaxSize:     maxMP3Size,
			Extension:   "mp3",
			Description: "MP3 audio",
		},
		{
			Tag:         "wav",
			Patterns:    [][]byte{[]byte("RIFF")},
			Extension:   "wav",
			Description: "RIFF container (WAV/AVI)",
		},
		{
			Tag:         "mkv",
			Patterns:    [][]byte{{0x1A, 0x45, 0xDF, 0xA3}},
			Extension:   "mkv",
			Description: "Matroska video",
		},
		{
			Tag:         "flv",
			Patterns:    [][]byte{[]byte("FLV")},
			Extension:   "flv",
			Description: "Flash video",
		},

		// Executables
		{
			Tag:         "exe",
			Patterns:    [][]byte{[]byte("MZ")},
			Extension:   "exe",
			Description: "Windows executable (EXE/DLL)",
		},
		{
			Tag:         "elf",
			Patterns:    [][]byte{{0x7F, 0x45, 0x4C, 0x46}},
			Extension:   "elf",
			Description: "ELF binary",
		},
		{
			Tag:         "dmg",
			Patterns:    [][]byte{{0x78, 0x01, 0x73, 0x0D, 0x62, 0x62, 0x60}},
			Extension:   "dmg",
			Description: "Apple disk image",
		},

		// Databases
		{
			Tag:         "sqlite",
			Patterns:    [][]byte{[]byte("SQLite format 3")},
			Extension:   "db",
			Description: "SQLite database",
		},
		{
			Tag: "mdb",
			Patterns: [][]byte{
				{0x00, 0x01, 0x00, 0x00, 0x53, 0x74, 0x61, 0x6E, 0x64, 0x61, 0x72, 0x64, 0x20, 0x4A},
			},
			Extension:   "mdb",
			Description: "Access database",
		},

		// Email
		{
			Tag:         "pst",
			Patterns:    [][]byte{[]byte("!BDN")},
			Extension:   "pst",
			Description: "Outlook mailbox",
		},
		{
			Tag:         "eml",
			Patterns:    [][]byte{[]byte("From")},
			Extension:   "eml",
			Description: "Email message",
		},
	}
}
