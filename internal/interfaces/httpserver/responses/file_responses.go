package responses

import (
	"chat-relay/internal/domain/attachment"
)

// FileResponse is the public view of a file reference. Bucket and key stay private.
type FileResponse struct {
	ID        string            `json:"id"`
	Object    string            `json:"object"`
	Filename  string            `json:"filename"`
	MimeType  string            `json:"mime"`
	SizeBytes int64             `json:"size_bytes"`
	Status    attachment.Status `json:"status"`
	CreatedAt int64             `json:"created_at"`
	URL       string            `json:"url,omitempty"`
	ExpiresAt int64             `json:"expires_at,omitempty"`
}

// PrepareUploadResponse tells the client where to PUT the bytes.
type PrepareUploadResponse struct {
	File      FileResponse `json:"file"`
	UploadURL string       `json:"upload_url"`
	Method    string       `json:"method"`
	ExpiresAt int64        `json:"expires_at"`
}

func NewFileResponse(file *attachment.FileReference) FileResponse {
	return FileResponse{
		ID:        file.ID,
		Object:    "file",
		Filename:  file.Filename,
		MimeType:  file.MimeType,
		SizeBytes: file.SizeBytes,
		Status:    file.Status,
		CreatedAt: file.CreatedAt.Unix(),
	}
}

func NewDownloadResponse(download *attachment.Download) FileResponse {
	resp := NewFileResponse(download.File)
	resp.URL = download.URL
	if download.ExpiresAt != nil {
		resp.ExpiresAt = download.ExpiresAt.Unix()
	}
	return resp
}

func NewPrepareUploadResponse(prepared *attachment.PreparedUpload) PrepareUploadResponse {
	return PrepareUploadResponse{
		File:      NewFileResponse(prepared.File),
		UploadURL: prepared.UploadURL,
		Method:    "PUT",
		ExpiresAt: prepared.ExpiresAt.Unix(),
	}
}
