package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nao1215/salvage/internal/signature"
)

// SignatureConfig holds one custom format signature from the config file.
// This allows recovering site-specific or proprietary formats without
// rebuilding the tool.
type SignatureConfig struct {
	// Tag is the short format identifier. Must not collide with a
	// builtin tag; overriding builtin bounds goes through SizeOverrides.
	Tag string `yaml:"tag"`

	// Patterns are the magic byte sequences, hex-encoded. An optional
	// "0x" prefix and interior spaces are accepted, so "89504E47" and
	// "0x89 50 4E 47" both work.
	Patterns []string `yaml:"patterns"`

	// MinSize is the minimum plausible size in bytes. Extractions below
	// it are dropped as false-positive noise. Zero means no minimum.
	MinSize int64 `yaml:"minSize,omitempty"`

	// MaxSize is the maximum plausible size in bytes, bounding
	// buffer-mode carves. Zero means no maximum.
	MaxSize int64 `yaml:"maxSize,omitempty"`

	// Extension is the file extension for recovered artifacts, without
	// the dot. Defaults to the tag.
	Extension string `yaml:"extension,omitempty"`

	// Description is the human-readable format name for reports.
	Description string `yaml:"description,omitempty"`
}

// SizeOverride adjusts the size bounds of an already-registered tag.
type SizeOverride struct {
	// MinSize is the new minimum plausible size in bytes.
	MinSize int64 `yaml:"minSize"`

	// MaxSize is the new maximum plausible size in bytes.
	MaxSize int64 `yaml:"maxSize"`
}

// File represents the structure of the salvage.yml configuration file.
type File struct {
	// Signatures are custom formats registered after the builtin table.
	// Builtin-first registration order means a builtin pattern always
	// wins same-offset ties against a custom one of equal length.
	Signatures []SignatureConfig `yaml:"signatures,omitempty"`

	// SizeOverrides maps builtin tags to replacement size bounds, for
	// deployments whose plausible file sizes differ from the defaults.
	SizeOverrides map[string]SizeOverride `yaml:"sizeOverrides,omitempty"`
}

// ToSignature converts the YAML form into a registrable signature.
// Hex patterns are decoded here so that malformed config fails at load
// time with the offending tag and pattern named.
func (sc SignatureConfig) ToSignature() (signature.FormatSignature, error) {
	patterns := make([][]byte, 0, len(sc.Patterns))
	for i, p := range sc.Patterns {
		cleaned := strings.ReplaceAll(strings.TrimPrefix(p, "0x"), " ", "")
		decoded, err := hex.DecodeString(cleaned)
		if err != nil {
			return signature.FormatSignature{}, fmt.Errorf("tag %q pattern %d: %w", sc.Tag, i, err)
		}
		patterns = append(patterns, decoded)
	}

	ext := sc.Extension
	if ext == "" {
		ext = sc.Tag
	}

	return signature.FormatSignature{
		Tag:         sc.Tag,
		Patterns:    patterns,
		MinSize:     sc.MinSize,
		MaxSize:     sc.MaxSize,
		Extension:   ext,
		Description: sc.Description,
	}, nil
}

// Apply merges the file's custom signatures and size overrides into a
// registry. Custom signatures are registered in file order, after
// whatever the registry already holds. The registry is left partially
// updated on error; callers treat any error here as fatal and rebuild.
func (cf *File) Apply(reg *signature.Registry) error {
	for _, sc := range cf.Signatures {
		sig, err := sc.ToSignature()
		if err != nil {
			return err
		}
		if err := reg.Register(sig); err != nil {
			return fmt.Errorf("failed to register custom signature: %w", err)
		}
	}

	for tag, ov := range cf.SizeOverrides {
		if err := reg.SetSizeBounds(tag, ov.MinSize, ov.MaxSize); err != nil {
			return fmt.Errorf("failed to apply size override: %w", err)
		}
	}

	return nil
}
