package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/glyphocr/internal/bitmap"
	"github.com/hyperjump/glyphocr/internal/models"
	"github.com/hyperjump/glyphocr/internal/storage"
	"github.com/hyperjump/glyphocr/internal/vector"
	"go.uber.org/zap"
)

// maxImageBytes caps uploaded image bodies.
const maxImageBytes = 8 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.set.Load() == nil {
		status = "no training set"
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleTrainingInfo(w http.ResponseWriter, r *http.Request) {
	set := s.set.Load()
	if set == nil {
		s.respondError(w, http.StatusServiceUnavailable, "training set not loaded")
		return
	}
	resp := map[string]interface{}{
		"training": models.TrainingInfo{
			Source:     s.trainPath,
			Size:       set.Len(),
			Dimensions: set.Dimensions(),
			Polarity:   set.Polarity().String(),
			Labels:     set.Labels(),
		},
	}
	if t := s.loadedAt.Load(); t != nil {
		resp["loaded_at"] = t.Format(time.RFC3339)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("reload request")
	if err := s.Reload(r.Context()); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	set := s.set.Load()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "reloaded",
		"size":       set.Len(),
		"dimensions": set.Dimensions(),
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	set := s.set.Load()
	if set == nil {
		s.respondError(w, http.StatusServiceUnavailable, "training set not loaded")
		return
	}
	label := r.URL.Query().Get("label")
	body := http.MaxBytesReader(w, r.Body, maxImageBytes)
	result, err := s.engine.ClassifyImage(set, body, "upload", label)
	if err != nil {
		s.logger.Debug("classify failed", zap.Error(err))
		s.respondError(w, classifyStatus(err), err.Error())
		return
	}
	s.logger.Debug("classify request",
		zap.String("label", label),
		zap.String("predicted", result.PredictedFile),
		zap.Float64("confidence", result.Confidence))
	s.respondJSON(w, http.StatusOK, result)
}

func classifyStatus(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, bitmap.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, vector.ErrDegenerateImage), errors.Is(err, vector.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.respondError(w, http.StatusNotImplemented, "run history not enabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.storage.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.RunSummary{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.respondError(w, http.StatusNotImplemented, "run history not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.storage.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	results, err := s.storage.GetResults(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"run": run, "results": results})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
