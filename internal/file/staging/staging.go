// Package staging holds raw uploaded bytes between upload and pinning.
// Two backends implement the same store contract: local disk (the default)
// and a MinIO bucket.
package staging

import (
	"path/filepath"
	"strings"
)

// SanitizeFilename reduces a client-supplied filename to a single safe path
// component. Directory separators and parent references are stripped so a
// staging key can never escape the staging root.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.Trim(name, ". ")

	if name == "" || name == "/" {
		return "upload"
	}
	return name
}
