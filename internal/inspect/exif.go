package inspect

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

// maxImageRead caps how much of a recovered image is loaded for EXIF
// extraction. Carved images can be as large as the format's size bound,
// but EXIF blocks live near the start of the file.
const maxImageRead = 64 << 20

// EXIFInspector extracts EXIF metadata from recovered images.
// EXIF data can contain GPS coordinates, camera serial numbers,
// software information, and timestamps that tie an image to a device,
// a place, and a person.
//
// This inspector surfaces:
//   - GPS coordinates (location disclosure)
//   - Camera make/model/serial (device identification)
//   - Software information (editing software, OS)
//   - Timestamps (capture and edit times)
//   - Author/copyright information (identity disclosure)
type EXIFInspector struct {
	// maxRead limits the bytes loaded from the artifact.
	maxRead int64
}

// NewEXIFInspector creates a new EXIFInspector.
func NewEXIFInspector() *EXIFInspector {
	return &EXIFInspector{maxRead: maxImageRead}
}

// Name returns the inspector name.
func (e *EXIFInspector) Name() string {
	return "exif"
}

// Supports reports true for image formats that can carry EXIF blocks.
func (e *EXIFInspector) Supports(tag string) bool {
	switch strings.ToLower(tag) {
	case "jpg", "jpeg", "tif", "tiff", "heic":
		return true
	}
	return false
}

// Inspect reads the artifact and extracts notable EXIF entries.
// An image with no EXIF block yields a finding that says so, because
// stripped metadata is itself a forensic observation.
func (e *EXIFInspector) Inspect(ctx context.Context, path string) (*Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, e.maxRead))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	finding := &Finding{
		Inspector: e.Name(),
		Path:      path,
		Details:   make([]Detail, 0),
	}

	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		finding.Summary = "no EXIF metadata"
		return finding, nil
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EXIF data: %w", err)
	}

	hasGPS := false
	for _, entry := range entries {
		detail, ok := classifyEXIFTag(entry.TagName, entry.Formatted)
		if !ok {
			continue
		}
		if strings.HasPrefix(entry.TagName, "GPS") {
			hasGPS = true
		}
		finding.Details = append(finding.Details, detail)
	}

	finding.Summary = fmt.Sprintf("%d notable EXIF entries", len(finding.Details))
	if hasGPS {
		finding.Summary += " including GPS coordinates"
	}
	return finding, nil
}

// classifyEXIFTag maps an EXIF tag to a detail with a note on what the
// value reveals. Tags with no forensic weight are dropped.
func classifyEXIFTag(tagName, value string) (Detail, bool) {
	switch tagName {
	case "GPSLatitude", "GPSLongitude", "GPSLatitudeRef", "GPSLongitudeRef":
		return Detail{Key: tagName, Value: value, Note: "location where the image was taken"}, true
	case "Make", "Model":
		return Detail{Key: tagName, Value: value, Note: "camera identification"}, true
	case "SerialNumber", "CameraSerialNumber", "BodySerialNumber", "LensSerialNumber":
		return Detail{Key: tagName, Value: value, Note: "unique device identifier"}, true
	case "Software", "ProcessingSoftware":
		return Detail{Key: tagName, Value: value, Note: "editing software or OS"}, true
	case "Artist", "Author", "Copyright", "XPAuthor":
		return Detail{Key: tagName, Value: value, Note: "creator identity"}, true
	case "DateTimeOriginal", "DateTimeDigitized", "DateTime":
		return Detail{Key: tagName, Value: value, Note: "capture or edit time"}, true
	case "HostComputer":
		return Detail{Key: tagName, Value: value, Note: "computer that processed the image"}, true
	}
	return Detail{}, false
}

// Ensure EXIFInspector implements Inspector.
var _ Inspector = (*EXIFInspector)(nil)
