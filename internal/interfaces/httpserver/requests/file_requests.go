package requests

// PrepareUploadRequest reserves a file id and asks for a presigned PUT.
type PrepareUploadRequest struct {
	Filename  string `json:"filename" binding:"required"`
	MimeType  string `json:"mime" binding:"required" example:"image/png"`
	SizeBytes int64  `json:"size_bytes" binding:"min=0"`
}
