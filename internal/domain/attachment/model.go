package attachment

import "time"

// Status is the upload state of a file reference.
type Status string

const (
	StatusPending  Status = "pending"
	StatusUploaded Status = "uploaded"
	StatusFailed   Status = "failed"
)

// FileReference points at an object in the bucket. Messages refer to files by ID only.
type FileReference struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Bucket    string    `json:"bucket"`
	ObjectKey string    `json:"object_key"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime"`
	SizeBytes int64     `json:"size_bytes"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UploadInput is a direct upload through the service.
type UploadInput struct {
	UserID   string
	Filename string
	// Size is the client-declared length, or -1 when unknown.
	Size int64
}

// PrepareUploadInput asks for a presigned PUT.
type PrepareUploadInput struct {
	UserID    string
	Filename  string
	MimeType  string
	SizeBytes int64
}

// PreparedUpload is returned to a client that will PUT the bytes itself.
type PreparedUpload struct {
	File      *FileReference `json:"file"`
	UploadURL string         `json:"upload_url"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Download is a file reference with a short-lived GET URL.
type Download struct {
	File      *FileReference `json:"file"`
	URL       string         `json:"url,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// allowedMIMEs is the upload allow-list.
var allowedMIMEs = map[string]bool{
	// images
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,

	// documents
	"application/pdf":  true,
	"application/json": true,
	"text/plain":       true,
	"text/markdown":    true,
	"text/x-markdown":  true,
	"text/csv":         true,

	// audio
	"audio/mpeg":  true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/webm":  true,
	"audio/ogg":   true,
	"audio/mp4":   true,

	// office
	"application/msword":            true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
}
