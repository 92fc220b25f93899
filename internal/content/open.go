package content

import (
	"path/filepath"
	"strings"
)

// Open opens a library by file extension: .db, .sqlite and .sqlite3 are
// SQLite databases, anything else is a YAML library file.
func Open(path string) (Repository, error) {
	if IsDatabase(path) {
		return OpenSQL(path)
	}
	return OpenFile(path)
}

// IsDatabase reports whether path names a SQLite library.
func IsDatabase(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}
