// Package remote is the thin contract over the cloud file store: get,
// list, create, update, delete, and an incremental change feed (spec.md
// §4.1). It never dials a socket itself — callers inject an
// already-authenticated *http.Client built from an oauth2.TokenSource.
package remote

import "strings"

// FileRecord is the authoritative remote record (spec.md §3). Parents is
// documented as a set but kept as an ordered slice: insertion order
// determines the canonical path when a record has more than one parent
// (§4.6.3), so callers must never sort or deduplicate it beyond
// exact-match.
type FileRecord struct {
	ID           string
	Name         string
	MimeType     string
	MD5Checksum  string // empty means "absent"
	Size         *int64 // nil means "not a downloadable blob"
	ModifiedTime string // RFC3339, string-orderable
	Parents      []string
	Trashed      bool
}

// folderMimeSubstring is the substring that identifies a folder mime type
// (e.g. "application/vnd.google-apps.folder").
const folderMimeSubstring = "folder"

// IsFolder reports whether the record represents a folder.
func (r *FileRecord) IsFolder() bool {
	return strings.Contains(r.MimeType, folderMimeSubstring)
}

// Change is one entry from the incremental change feed: either a
// replacement record (possibly trashed) or a removal marker.
type Change struct {
	FileID  string
	Record  *FileRecord // nil when Removed is true
	Removed bool
}
