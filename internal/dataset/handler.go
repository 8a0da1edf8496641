package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/AzeemWaqarr/wattwise/internal/dto"
	"github.com/AzeemWaqarr/wattwise/internal/httpx"
	"go.uber.org/zap"
)

// Pinger reports the round-trip time to the database.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

type Handler struct {
	service   Service
	pinger    Pinger
	adminOnly func(http.Handler) http.Handler
	maxMemory int64
	log       *zap.SugaredLogger
	now       func() time.Time
}

type HandlerConfig struct {
	Service Service
	Pinger  Pinger
	// AdminOnly guards maintenance routes.
	AdminOnly       func(http.Handler) http.Handler
	MaxUploadMemory int64
	Logger          *zap.SugaredLogger
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("dataset service is required")
	}
	if cfg.AdminOnly == nil {
		return nil, errors.New("admin middleware is required")
	}
	h := &Handler{
		service:   cfg.Service,
		pinger:    cfg.Pinger,
		adminOnly: cfg.AdminOnly,
		maxMemory: cfg.MaxUploadMemory,
		log:       cfg.Logger,
		now:       time.Now,
	}
	if h.maxMemory <= 0 {
		h.maxMemory = 32 << 20
	}
	if h.log == nil {
		h.log = zap.NewNop().Sugar()
	}
	return h, nil
}

func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/upload-csv", h.handleUpload)
	mux.HandleFunc("GET /api/datasets", h.handleList)
	mux.HandleFunc("GET /api/preview/{filename}", h.handlePreview)
	mux.HandleFunc("GET /api/download/{filename}", h.handleDownload)
	mux.HandleFunc("DELETE /api/delete/{filename}", h.handleDelete)
	mux.HandleFunc("GET /api/storage-size", h.handleStorageSize)
	mux.HandleFunc("GET /api/db-stats", h.handleStats)
	mux.HandleFunc("GET /api/recent-activity", h.handleRecentActivity)
	mux.HandleFunc("GET /api/export-report", h.handleExportReport)
	mux.HandleFunc("GET /api/cities", h.handleCities)
	mux.HandleFunc("GET /api/db-ping", h.handlePing)
	mux.HandleFunc("GET /api/performance-metrics", h.handlePerformanceMetrics)
	mux.Handle("POST /api/maintenance/reconcile", h.adminOnly(http.HandlerFunc(h.handleReconcile)))
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "expected multipart/form-data with a file field")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.log.Warnw("remove multipart temp files failed", "error", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, ErrMissingFile.Error())
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.log.Errorw("read uploaded file failed", "filename", header.Filename, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "File upload failed.")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	metadata, err := h.service.Upload(r.Context(), UploadInput{
		Filename:    header.Filename,
		Category:    r.FormValue("category"),
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		if errors.Is(err, ErrBadRequest) {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Errorw("upload failed", "filename", header.Filename, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "File upload failed.")
		return
	}

	h.log.Infow("dataset uploaded", "filename", metadata.Name, "category", metadata.Category, "size", metadata.Size)
	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{
		Message: "File uploaded and stored in MongoDB collection successfully!",
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context())
	if err != nil {
		h.log.Errorw("list datasets failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to fetch datasets")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	rows, err := h.service.Preview(r.Context(), filename, r.URL.Query().Get("category"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "File not found for preview")
		case errors.Is(err, ErrBadRequest):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrParse):
			h.log.Warnw("preview parse failed", "filename", filename, "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "CSV parsing failed")
		default:
			h.log.Errorw("preview failed", "filename", filename, "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "Failed to preview dataset")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	file, err := h.service.Download(r.Context(), filename, r.URL.Query().Get("category"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "File not found")
		case errors.Is(err, ErrBadRequest):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Errorw("download failed", "filename", filename, "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "Download failed")
		}
		return
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, EscapeFilename(file.Filename)))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Content); err != nil {
		h.log.Warnw("write download body failed", "filename", filename, "error", err)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	err := h.service.Delete(r.Context(), filename, r.URL.Query().Get("category"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "Dataset not found for deletion")
		case errors.Is(err, ErrBadRequest):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Errorw("delete failed", "filename", filename, "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "Failed to delete dataset")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{Message: "Dataset deleted successfully"})
}

func (h *Handler) handleStorageSize(w http.ResponseWriter, r *http.Request) {
	total, err := h.service.StorageSize(r.Context())
	if err != nil {
		h.log.Errorw("storage size failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to calculate storage size")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.StorageSizeResponse{TotalSize: total})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.AggregateStats(r.Context(), h.now())
	if err != nil {
		h.log.Errorw("db stats failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to fetch DB stats")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleRecentActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := h.service.RecentActivity(r.Context())
	if err != nil {
		h.log.Errorw("recent activity failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to fetch recent activity")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, activity)
}

func (h *Handler) handleExportReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ExportReport(r.Context(), h.now())
	if err != nil {
		h.log.Errorw("export report failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to generate report")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+report.Filename)
	if report.ObjectKey != "" {
		w.Header().Set("X-Report-Key", report.ObjectKey)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(report.Content); err != nil {
		h.log.Warnw("write report body failed", "error", err)
	}
}

func (h *Handler) handleCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.service.CityNames(r.Context())
	if err != nil {
		h.log.Errorw("list cities failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to fetch cities")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cities)
}

func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, dto.PingResponse{Ping: "Unavailable"})
		return
	}
	rtt, err := h.pinger.Ping(r.Context())
	if err != nil {
		h.log.Warnw("db ping failed", "error", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, dto.PingResponse{Ping: "Unavailable"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.PingResponse{Ping: fmt.Sprintf("%dms", rtt.Milliseconds())})
}

func (h *Handler) handlePerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.PerformanceMetrics(r.Context())
	if err != nil {
		h.log.Errorw("performance metrics failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to fetch performance metrics")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.log.Errorw("reconcile failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to reconcile datasets")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.ReconcileResponse{
		Message:        "Reconciliation complete",
		OrphanMetadata: result.OrphanMetadata,
		OrphanBlobs:    result.OrphanBlobs,
	})
}
