package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"session-rag/internal/api/response"
	"session-rag/internal/config"
	"session-rag/internal/models"
	"session-rag/internal/rag"
)

// multipartOverhead is the room left for form fields and boundaries on top
// of the file size limit.
const multipartOverhead = 1 << 20

type Handler struct {
	service RAGService
	cfg     *config.Config
}

func NewHandler(service RAGService, cfg *config.Config) *Handler {
	return &Handler{service: service, cfg: cfg}
}

type QueryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type UploadResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ChunksStored int    `json:"chunks_stored"`
	Filename     string `json:"filename"`
}

type ResetResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Deleted int    `json:"deleted"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

// Health handles GET /
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, HealthResponse{
		Status:  "ok",
		Message: fmt.Sprintf("%s is running", h.cfg.Server.ProjectName),
		Version: h.cfg.Server.Version,
	})
}

// Upload handles POST /upload with a multipart file, session_id and an
// optional password.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := h.cfg.Ingest.MaxBytes()

	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(ctx, w, http.StatusRequestEntityTooLarge, h.tooLargeDetail(), err)
			return
		}
		h.respondError(ctx, w, http.StatusBadRequest, "failed to parse form", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "file is required", err)
		return
	}
	defer file.Close()

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		h.respondError(ctx, w, http.StatusUnprocessableEntity, "session_id is required", models.Validationf("session id is required"))
		return
	}

	if err := h.service.CheckUpload(header.Filename, header.Size); err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "failed to read file", err)
		return
	}

	result, err := h.service.Ingest(ctx, rag.IngestRequest{
		Filename:  header.Filename,
		Data:      data,
		SessionID: sessionID,
		Password:  r.FormValue("password"),
	})
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	response.Success(w, UploadResponse{
		Status:       "success",
		Message:      "Document processed successfully",
		ChunksStored: result.ChunksStored,
		Filename:     result.Filename,
	})
}

// Query handles POST /query
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if _, err := rag.ValidateQuestion(req.Question); err != nil {
		h.respondError(ctx, w, http.StatusUnprocessableEntity,
			fmt.Sprintf("question must be at least %d characters", models.MinQuestionLength), err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		h.respondError(ctx, w, http.StatusUnprocessableEntity, "session_id is required", models.Validationf("session id is required"))
		return
	}

	answer, err := h.service.Query(ctx, req.Question, req.SessionID)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}
	response.Success(w, answer)
}

// Reset handles DELETE /reset. Without a session_id every session is removed.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deleted, err := h.service.Reset(ctx, strings.TrimSpace(r.URL.Query().Get("session_id")))
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	message := "Database is already empty."
	if deleted > 0 {
		message = fmt.Sprintf("Deleted %d records. Database is clean.", deleted)
	}
	response.Success(w, ResetResponse{Status: "success", Message: message, Deleted: deleted})
}

func (h *Handler) tooLargeDetail() string {
	return fmt.Sprintf("File size exceeds %d MB limit", h.cfg.Ingest.MaxFileSizeMB)
}

func (h *Handler) formatDetail() string {
	names := make([]string, len(h.cfg.Ingest.AllowedExtensions))
	for i, ext := range h.cfg.Ingest.AllowedExtensions {
		names[i] = strings.ToUpper(strings.TrimPrefix(ext, "."))
	}
	return fmt.Sprintf("Only %s files are allowed", strings.Join(names, ", "))
}

func (h *Handler) respondError(ctx context.Context, w http.ResponseWriter, status int, detail string, err error) {
	event := zerolog.Ctx(ctx).Warn()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(ctx).Error()
	}
	event.Err(err).Int("status", status).Str("kind", string(models.KindOf(err))).Msg(detail)
	response.Error(w, status, detail)
}

func (h *Handler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrFileTooLarge):
		h.respondError(ctx, w, http.StatusRequestEntityTooLarge, h.tooLargeDetail(), err)
	case errors.Is(err, models.ErrUnsupportedFormat):
		h.respondError(ctx, w, http.StatusBadRequest, h.formatDetail(), err)
	case errors.Is(err, models.ErrPasswordRequired):
		h.respondError(ctx, w, http.StatusUnprocessableEntity, "PDF is password protected. Please provide a password.", err)
	case errors.Is(err, models.ErrWrongPassword):
		h.respondError(ctx, w, http.StatusBadRequest, "Incorrect password for encrypted PDF", err)
	case errors.Is(err, models.ErrNoText):
		h.respondError(ctx, w, http.StatusUnprocessableEntity, "No text could be extracted from the PDF", err)
	case errors.Is(err, models.ErrUnsupportedEncryption):
		h.respondError(ctx, w, http.StatusUnprocessableEntity, "PDF encryption method is not supported", err)
	case errors.Is(err, models.ErrCorruptDocument):
		h.respondError(ctx, w, http.StatusUnprocessableEntity, "Failed to read PDF", err)
	case errors.Is(err, models.ErrValidation):
		h.respondError(ctx, w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		h.respondError(ctx, w, http.StatusGatewayTimeout, "request timed out", err)
	default:
		detail := "processing failed"
		if h.cfg.Server.ExposeErrors {
			detail = err.Error()
		}
		h.respondError(ctx, w, http.StatusInternalServerError, detail, err)
	}
}
