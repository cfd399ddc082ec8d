// Package attachment binds photo files to records and brackets external
// capture with scoped write permissions.
package attachment

import (
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
)

// Layout maps record ids to attachment files inside one directory.
type Layout struct {
	Dir string
}

func NewLayout(dir string) Layout {
	return Layout{Dir: dir}
}

// Path returns the attachment file for id. The file need not exist.
func (l Layout) Path(id ulid.ULID) string {
	return filepath.Join(l.Dir, "IMG_"+id.String()+".jpg")
}

// Exists reports whether id has a non-empty attachment file.
func (l Layout) Exists(id ulid.ULID) bool {
	info, err := os.Stat(l.Path(id))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Remove deletes the attachment of id, if any.
func (l Layout) Remove(id ulid.ULID) error {
	err := os.Remove(l.Path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
