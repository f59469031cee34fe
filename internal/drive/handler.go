package drive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// SnapshotRunner prices a snapshot that has been materialized into dir.
type SnapshotRunner interface {
	RunSnapshot(ctx context.Context, dir string, opts domain.RunOptions) (*domain.RunResult, error)
}

type Handler struct {
	src     Source
	fetcher *Fetcher
	runner  SnapshotRunner
}

func NewHandler(src Source, runner SnapshotRunner) *Handler {
	return &Handler{src: src, fetcher: NewFetcher(src), runner: runner}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/drive/files", h.ListFiles).Methods(http.MethodGet)
	router.HandleFunc("/api/drive/files/download", h.DownloadFile).Methods(http.MethodGet)
	router.HandleFunc("/api/drive/runs", h.RunFolder).Methods(http.MethodPost)
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	folderID := query.Get("folderId")

	if path := query.Get("path"); path != "" {
		id, err := h.src.FindFolderByPath(r.Context(), path)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		folderID = id
	}

	files, err := h.src.ListFiles(r.Context(), folderID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if files == nil {
		files = []*File{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		writeError(w, http.StatusBadRequest, errors.New("fileId parameter is required"))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(fileID))
	if err := h.src.DownloadFile(r.Context(), fileID, w); err != nil {
		log.Error().Err(err).Str("file_id", fileID).Msg("drive: download failed")
		writeError(w, http.StatusBadGateway, err)
	}
}

// RunFolder fetches a folder snapshot and prices it.
func (h *Handler) RunFolder(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("pricing runner not configured"))
		return
	}

	query := r.URL.Query()
	opts := domain.RunOptions{Category: query.Get("category"), DayOfWeek: query.Get("day")}
	if v := query.Get("target_margin_pct"); v != "" {
		pct, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("target_margin_pct must be a number"))
			return
		}
		opts.TargetMarginPct = &pct
	}
	if err := opts.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	dir, err := os.MkdirTemp("", "drive-snapshot-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer os.RemoveAll(dir)

	_, err = h.fetcher.Fetch(r.Context(), FetchOptions{
		FolderID:   query.Get("folderId"),
		FolderPath: query.Get("path"),
		Dir:        dir,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	result, err := h.runner.RunSnapshot(r.Context(), dir, opts)
	if err != nil {
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func statusFor(err error) int {
	if errors.Is(err, ErrFolderNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
