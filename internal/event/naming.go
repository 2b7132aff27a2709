package event

import (
	"fmt"
	"strings"
)

// DefaultPrefix and DefaultExtension give the compatible file names
// event001.mkv, event002.mkv, ...
const (
	DefaultPrefix    = "event"
	DefaultExtension = "mkv"
)

// SegmentName returns prefix + id zero padded to 3 digits + "." + ext.
// Empty prefix or extension fall back to the defaults.
func SegmentName(prefix string, id int, ext string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = DefaultExtension
	}
	return fmt.Sprintf("%s%03d.%s", prefix, id, ext)
}
