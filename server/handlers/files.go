package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/auth"
	"github.com/ebogdum/sharefs/core"
	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/server/middleware"
)

// maxMultipartMemory bounds how much of a multipart upload is buffered in
// memory before spilling to disk.
const maxMultipartMemory = 32 << 20

// FileResponse is the external view of a file record. The blob object
// reference stays internal.
type FileResponse struct {
	FileID        string    `json:"file_id"`
	OwnerID       string    `json:"owner_id"`
	Filename      string    `json:"filename"`
	ContentType   string    `json:"content_type"`
	SizeBytes     int64     `json:"size_bytes"`
	ContentHash   string    `json:"content_hash"`
	Description   string    `json:"description,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	DownloadCount int64     `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toFileResponse(fr *metadata.FileRecord) FileResponse {
	return FileResponse{
		FileID:        fr.FileID,
		OwnerID:       fr.OwnerID,
		Filename:      fr.Filename,
		ContentType:   fr.ContentType,
		SizeBytes:     fr.SizeBytes,
		ContentHash:   fr.ContentHash,
		Description:   fr.Description,
		Tags:          fr.Tags,
		DownloadCount: fr.DownloadCount,
		CreatedAt:     fr.CreatedAt,
		UpdatedAt:     fr.UpdatedAt,
	}
}

// V1CreateFileHandler handles multipart file uploads. The content goes in
// the "file" part; "description" and "tags" (comma-separated) parts are
// optional.
func V1CreateFileHandler(engine *core.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principalID, ok := middleware.GetPrincipalID(ctx)
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			logger.Warn("Invalid multipart upload", zap.Error(err))
			SendErrorResponse(w, logger, errors.New("invalid multipart request body"), http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			SendErrorResponse(w, logger, errors.New("missing file part"), http.StatusBadRequest)
			return
		}
		defer file.Close()

		var tags []string
		if raw := r.FormValue("tags"); raw != "" {
			for _, t := range strings.Split(raw, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
		}

		fr, err := engine.CreateFile(ctx, principalID, core.CreateFileRequest{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Description: r.FormValue("description"),
			Tags:        tags,
			Size:        header.Size,
			Body:        file,
		})
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusCreated, toFileResponse(fr))
	}
}

// V1ListFilesHandler returns the caller's files, newest first. Supports
// limit/offset query parameters.
func V1ListFilesHandler(engine *core.Engine, pageSizeLimit int, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principalID, ok := middleware.GetPrincipalID(ctx)
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		limit := parseIntParam(r, "limit", pageSizeLimit)
		if limit <= 0 || limit > pageSizeLimit {
			limit = pageSizeLimit
		}
		offset := parseIntParam(r, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		records, err := engine.ListFiles(ctx, principalID, limit, offset)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		files := make([]FileResponse, 0, len(records))
		for _, fr := range records {
			files = append(files, toFileResponse(fr))
		}
		SendJSONResponse(w, http.StatusOK, map[string]interface{}{
			"files": files,
			"count": len(files),
		})
	}
}

// V1GetFileInfoHandler returns metadata for a single file
func V1GetFileInfoHandler(engine *core.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principalID, ok := middleware.GetPrincipalID(ctx)
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		fileID := chi.URLParam(r, "fileID")
		fr, err := engine.GetFileInfo(ctx, principalID, fileID)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusOK, toFileResponse(fr))
	}
}

// V1DownloadFileHandler returns a presigned download URL for a file the
// caller can view
func V1DownloadFileHandler(engine *core.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principalID, ok := middleware.GetPrincipalID(ctx)
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		fileID := chi.URLParam(r, "fileID")
		url, fr, err := engine.Download(ctx, principalID, fileID)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusOK, map[string]interface{}{
			"download_url": url,
			"filename":     fr.Filename,
			"size_bytes":   fr.SizeBytes,
			"content_type": fr.ContentType,
		})
	}
}

// V1DeleteFileHandler deletes a file, its permissions and its share tokens
func V1DeleteFileHandler(engine *core.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principalID, ok := middleware.GetPrincipalID(ctx)
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		fileID := chi.URLParam(r, "fileID")
		if err := engine.DeleteFile(ctx, principalID, fileID); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
