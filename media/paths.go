package media

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// servedPrefix is the URL prefix under which stored media is exposed; callers
// sometimes hand back references that still carry it.
const servedPrefix = "/media/"

// Paths normalizes and resolves stored artifact references against the media
// root. All stored references are forward-slash, root-relative strings.
type Paths struct {
	root string
}

func NewPaths(root string) Paths {
	return Paths{root: root}
}

// Root returns the media root directory.
func (p Paths) Root() string {
	return p.root
}

// Normalize converts any artifact reference into a root-relative,
// forward-slash form. Absolute paths outside the root fall back to the
// cleaned string rather than leaking filesystem layout.
func (p Paths) Normalize(path string) string {
	if path == "" {
		return ""
	}

	value := strings.ReplaceAll(path, "\\", "/")
	value = strings.TrimPrefix(value, servedPrefix)

	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(p.root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			// Path lies outside media root; fall back to the cleaned string.
			return value
		}
		return filepath.ToSlash(rel)
	}
	return value
}

// Resolve maps a stored reference to an absolute filesystem path under the
// media root. Absolute inputs are returned as-is.
func (p Paths) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.root, filepath.FromSlash(p.Normalize(path)))
}

// ImageDataURI reads the referenced image and inlines it as a base64 data
// URI. The content type comes from the file extension, defaulting to
// image/png when unknown.
func (p Paths) ImageDataURI(path string) (string, error) {
	resolved := p.Resolve(path)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("media: read image %q: %w", resolved, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(resolved))
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), nil
}
