package store

// Library is the narrow persistence contract consumed by the duplicate engine
type Library interface {
	GetAllFiles() ([]*FileRecord, error)
	GetFileByID(id int64) (*FileRecord, error)
	DeleteFile(id int64) (bool, error)
	UpdateFingerprint(id int64, fingerprint string, durationSec int) (bool, error)
	GetFilesWithoutFingerprint() ([]*FileRecord, error)
}

// Editor is implemented by libraries that support bulk tag edits
type Editor interface {
	UpdateMetadata(ids []int64, edit MetadataEdit) (int, error)
}

var (
	_ Library = (*Store)(nil)
	_ Editor  = (*Store)(nil)
)
