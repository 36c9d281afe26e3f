package remote

import "google.golang.org/api/drive/v3"

// toRecord converts a drive.File wire object to the domain FileRecord.
func toRecord(f *drive.File) *FileRecord {
	var size *int64
	if f.Size > 0 {
		s := f.Size
		size = &s
	}

	return &FileRecord{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		MD5Checksum:  f.Md5Checksum,
		Size:         size,
		ModifiedTime: f.ModifiedTime,
		Parents:      f.Parents,
		Trashed:      f.Trashed,
	}
}

// fromRecord converts a domain FileRecord to the drive.File wire shape
// used for create/update calls. Only the fields a caller would set on a
// patch (name, mimeType, parents, trashed) are carried — server-computed
// fields like md5Checksum and size are never sent back.
func fromRecord(r *FileRecord) *drive.File {
	f := &drive.File{
		Name:     r.Name,
		MimeType: r.MimeType,
	}

	if len(r.Parents) > 0 {
		f.Parents = r.Parents
	}

	if r.Trashed {
		f.Trashed = true
		f.ForceSendFields = append(f.ForceSendFields, "Trashed")
	}

	return f
}
