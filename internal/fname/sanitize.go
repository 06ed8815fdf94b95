// Package fname sanitizes user-supplied filenames before they are stored in
// metadata or embedded in blob object references.
package fname

import (
	"strings"
)

// maxLength is the longest sanitized filename we will store.
const maxLength = 255

// Sanitize rewrites a user-supplied filename into a safe form: path
// separators and control characters are replaced, the base name is kept, and
// the result is bounded in length with the extension preserved. An empty or
// fully unsafe input becomes "unnamed".
func Sanitize(name string) string {
	// Keep only the final path element; uploads sometimes carry full paths.
	if idx := strings.LastIndexAny(name, "/\\"); idx != -1 {
		name = name[idx+1:]
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), ". ")
	if out == "" {
		return "unnamed"
	}

	if len(out) > maxLength {
		out = truncatePreservingExt(out)
	}
	return out
}

func truncatePreservingExt(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 || len(name)-dot > 10 {
		return name[:maxLength]
	}
	ext := name[dot:]
	return name[:maxLength-len(ext)] + ext
}
