package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/glyphocr/internal/bitmap"
	"github.com/hyperjump/glyphocr/internal/classify"
	"github.com/hyperjump/glyphocr/internal/config"
	"github.com/hyperjump/glyphocr/internal/manifest"
	"github.com/hyperjump/glyphocr/internal/models"
	"github.com/hyperjump/glyphocr/internal/storage"
	"go.uber.org/zap"
)

var (
	squareRows = [][]uint8{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}}
	cornerRows = [][]uint8{{1, 0, 0}, {0, 0, 0}, {0, 0, 0}}
)

func addGlyph(t *testing.T, dir, file, label string, rows [][]uint8) {
	t.Helper()
	grid, err := bitmap.FromRows(rows)
	if err != nil {
		t.Fatal(err)
	}
	if err := bitmap.Save(filepath.Join(dir, file), grid, bitmap.PolarityNative); err != nil {
		t.Fatal(err)
	}
	if err := manifest.Append(dir, "", manifest.Entry{Filename: file, Label: label}); err != nil {
		t.Fatal(err)
	}
}

func pngBody(t *testing.T, rows [][]uint8) *bytes.Buffer {
	t.Helper()
	grid, err := bitmap.FromRows(rows)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := bitmap.Encode(&buf, grid, bitmap.PolarityNative); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func newTestServer(t *testing.T, store storage.Storage) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	addGlyph(t, dir, "A.png", "square", squareRows)
	addGlyph(t, dir, "B.png", "corner", cornerRows)
	srv := NewServer(classify.NewEngine(), dir, store, &config.ServerConfig{Port: 8080}, zap.NewNop())
	if err := srv.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	return srv, dir
}

func do(t *testing.T, srv *Server, method, target string, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, body)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(classify.NewEngine(), t.TempDir(), nil, &config.ServerConfig{}, zap.NewNop())
	w := do(t, srv, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "no training set" {
		t.Errorf("status before load: got %q", out["status"])
	}
}

func TestHandleTrainingInfo(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := do(t, srv, http.MethodGet, "/api/v1/training", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Training models.TrainingInfo `json:"training"`
		LoadedAt string              `json:"loaded_at"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Training.Size != 2 || out.Training.Dimensions != 9 || out.Training.Polarity != "native" {
		t.Errorf("training info: got %+v", out.Training)
	}
	if len(out.Training.Labels) != 2 || out.Training.Labels[0] != "square" {
		t.Errorf("labels: got %v", out.Training.Labels)
	}
	if out.LoadedAt == "" {
		t.Error("loaded_at should be set")
	}
}

func TestHandleClassify(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := do(t, srv, http.MethodPost, "/api/v1/classify?label=corner", pngBody(t, cornerRows))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var res models.ClassificationResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.PredictedFile != "B.png" || res.DisplayPredictedLabel() != "corner" || res.TestLabel != "corner" {
		t.Errorf("result: got %+v", res)
	}
}

func TestHandleClassify_errors(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	tests := []struct {
		name string
		body *bytes.Buffer
		want int
	}{
		{"not an image", bytes.NewBufferString("hello"), http.StatusUnsupportedMediaType},
		{"blank image", pngBody(t, [][]uint8{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}), http.StatusUnprocessableEntity},
		{"wrong size", pngBody(t, [][]uint8{{1, 1}, {1, 1}}), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/v1/classify", tt.body)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d, body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleClassify_notLoaded(t *testing.T) {
	srv := NewServer(classify.NewEngine(), t.TempDir(), nil, &config.ServerConfig{}, zap.NewNop())
	w := do(t, srv, http.MethodPost, "/api/v1/classify", pngBody(t, squareRows))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", w.Code)
	}
}

func TestHandleReload(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	before := srv.TrainingSet()
	addGlyph(t, dir, "C.png", "square again", squareRows)

	w := do(t, srv, http.MethodPost, "/api/v1/training/reload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if srv.TrainingSet().Len() != 3 {
		t.Errorf("size after reload: got %d, want 3", srv.TrainingSet().Len())
	}
	if before.Len() != 2 {
		t.Error("previous training set was mutated")
	}
}

func TestHandleReload_failureKeepsPreviousSet(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	if err := os.Remove(filepath.Join(dir, "B.png")); err != nil {
		t.Fatal(err)
	}
	w := do(t, srv, http.MethodPost, "/api/v1/training/reload", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", w.Code)
	}
	if srv.TrainingSet() == nil || srv.TrainingSet().Len() != 2 {
		t.Error("failed reload should keep the previous set")
	}
}

func TestHandleRuns(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	report := &models.Report{
		TrainPath: "train", TestDir: "test", TrainingSize: 2, Dimensions: 9, StartedAt: time.Now(),
		Results: []*models.ClassificationResult{{TestFile: "A.png", TestLabel: "A", PredictedLabel: "A", Confidence: 1}},
	}
	if err := store.SaveReport(context.Background(), report); err != nil {
		t.Fatal(err)
	}
	srv, _ := newTestServer(t, store)

	w := do(t, srv, http.MethodGet, "/api/v1/runs?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status: got %d", w.Code)
	}
	var list struct {
		Runs []models.RunSummary `json:"runs"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Runs) != 1 || list.Runs[0].RunID != report.RunID {
		t.Errorf("runs: got %+v", list.Runs)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/runs/"+report.RunID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status: got %d", w.Code)
	}
	w = do(t, srv, http.MethodGet, "/api/v1/runs/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing run status: got %d, want 404", w.Code)
	}
	w = do(t, srv, http.MethodGet, "/api/v1/runs?limit=zero", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status: got %d, want 400", w.Code)
	}
}

func TestHandleRuns_notEnabled(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := do(t, srv, http.MethodGet, "/api/v1/runs", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}
