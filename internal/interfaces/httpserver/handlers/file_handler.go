package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chat-relay/internal/domain/attachment"
	"chat-relay/internal/infrastructure/auth"
	"chat-relay/internal/interfaces/httpserver/requests"
	"chat-relay/internal/interfaces/httpserver/responses"
	"chat-relay/internal/utils/platformerrors"
)

// multipartOverhead leaves room for boundaries and part headers around the file.
const multipartOverhead = 1 << 20

// FileService is the attachment use case surface the handler needs.
type FileService interface {
	Upload(ctx context.Context, in attachment.UploadInput, body io.Reader) (*attachment.FileReference, error)
	PrepareUpload(ctx context.Context, in attachment.PrepareUploadInput) (*attachment.PreparedUpload, error)
	Complete(ctx context.Context, userID, id string) (*attachment.FileReference, error)
	Get(ctx context.Context, userID, id string) (*attachment.Download, error)
}

// FileHandler exposes attachment uploads.
type FileHandler struct {
	service        FileService
	maxUploadBytes int64
	log            zerolog.Logger
}

func NewFileHandler(service FileService, maxUploadBytes int64, log zerolog.Logger) *FileHandler {
	return &FileHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		log:            log.With().Str("component", "file-handler").Logger(),
	}
}

// Upload godoc
// @Summary      Upload a file
// @Description  Stores an attachment. The type is detected from the content and must be on the allow-list.
// @Tags         files
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "File to upload"
// @Success      201   {object}  responses.FileResponse
// @Failure      400   {object}  responses.ErrorResponse
// @Failure      413   {object}  responses.ErrorResponse
// @Failure      503   {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/files [post]
func (h *FileHandler) Upload(reqCtx *gin.Context) {
	reqCtx.Request.Body = http.MaxBytesReader(reqCtx.Writer, reqCtx.Request.Body, h.maxUploadBytes+multipartOverhead)

	fileHeader, err := reqCtx.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeTooLarge, "file exceeds the upload limit", "5b7d9f1a-3c5e-4a7b-9d1f-3a5c7e9b1d3f", h.log)
			return
		}
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "multipart field \"file\" is required", "7e9a1c3d-5f7b-4c9e-8a1b-3d5f7a9c1e3b", h.log)
		return
	}
	body, err := fileHeader.Open()
	if err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "failed to read upload", "9a1c3e5b-7d9f-4b1a-8c3e-5b7d9f1a3c5e", h.log)
		return
	}
	defer body.Close()

	file, err := h.service.Upload(reqCtx.Request.Context(), attachment.UploadInput{
		UserID:   auth.UserID(reqCtx),
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
	}, body)
	if err != nil {
		responses.HandleError(reqCtx, err, h.log)
		return
	}
	reqCtx.JSON(http.StatusCreated, responses.NewFileResponse(file))
}

// PrepareUpload godoc
// @Summary      Prepare a direct upload
// @Description  Reserves a file id and returns a presigned PUT URL. Call complete once the bytes are uploaded.
// @Tags         files
// @Accept       json
// @Produce      json
// @Param        request  body      requests.PrepareUploadRequest  true  "Upload metadata"
// @Success      201      {object}  responses.PrepareUploadResponse
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      413      {object}  responses.ErrorResponse
// @Failure      503      {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/files/prepare-upload [post]
func (h *FileHandler) PrepareUpload(reqCtx *gin.Context) {
	var request requests.PrepareUploadRequest
	if err := reqCtx.ShouldBindJSON(&request); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body", "1c3e5a7b-9d1f-4c3e-8a5b-7d9f1c3e5a7b", h.log)
		return
	}
	prepared, err := h.service.PrepareUpload(reqCtx.Request.Context(), attachment.PrepareUploadInput{
		UserID:    auth.UserID(reqCtx),
		Filename:  request.Filename,
		MimeType:  request.MimeType,
		SizeBytes: request.SizeBytes,
	})
	if err != nil {
		responses.HandleError(reqCtx, err, h.log)
		return
	}
	reqCtx.JSON(http.StatusCreated, responses.NewPrepareUploadResponse(prepared))
}

// CompleteUpload godoc
// @Summary      Complete a direct upload
// @Tags         files
// @Produce      json
// @Param        id   path      string  true  "File ID"
// @Success      200  {object}  responses.FileResponse
// @Failure      400  {object}  responses.ErrorResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/files/{id}/complete [post]
func (h *FileHandler) CompleteUpload(reqCtx *gin.Context) {
	file, err := h.service.Complete(reqCtx.Request.Context(), auth.UserID(reqCtx), reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err, h.log)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.NewFileResponse(file))
}

// GetFile godoc
// @Summary      Get a file
// @Description  Returns the file reference and, once uploaded, a short-lived download URL.
// @Tags         files
// @Produce      json
// @Param        id   path      string  true  "File ID"
// @Success      200  {object}  responses.FileResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/files/{id} [get]
func (h *FileHandler) GetFile(reqCtx *gin.Context) {
	download, err := h.service.Get(reqCtx.Request.Context(), auth.UserID(reqCtx), reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err, h.log)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.NewDownloadResponse(download))
}
