package extraction

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/studydata/pkg/common/logger"
	"github.com/synaptica-ai/studydata/pkg/common/models"
	"github.com/synaptica-ai/studydata/pkg/output"
)

type HTTPHandler struct {
	service   *Service
	runner    *Runner
	maxBody   int64
	listLimit int
}

// NewHTTPHandler serves generation and codelists. Job routes are registered
// only when runner is non-nil.
func NewHTTPHandler(service *Service, runner *Runner, maxBody int64, listLimit int) *HTTPHandler {
	return &HTTPHandler{service: service, runner: runner, maxBody: maxBody, listLimit: listLimit}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/datasets/generate", h.handleGenerate).Methods(http.MethodPost)
	router.HandleFunc("/datasets/validate", h.handleValidate).Methods(http.MethodPost)
	router.HandleFunc("/codelists", h.handleCodelists).Methods(http.MethodGet)
	if h.runner != nil {
		router.HandleFunc("/datasets/jobs", h.handleEnqueue).Methods(http.MethodPost)
		router.HandleFunc("/datasets/jobs", h.handleListJobs).Methods(http.MethodGet)
		router.HandleFunc("/datasets/jobs/{id}", h.handleGetJob).Methods(http.MethodGet)
		router.HandleFunc("/datasets/jobs/{id}/result", h.handleJobResult).Methods(http.MethodGet)
	}
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request) (models.DatasetRequest, bool) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	var req models.DatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Log.WithError(err).Warn("invalid dataset request payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *HTTPHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if format := r.URL.Query().Get("format"); format != "" {
		req.Format = format
	}
	if req.Format == "" {
		req.Format = output.FormatCSV
	}

	gen, err := h.service.Generate(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "failed to generate dataset")
		return
	}

	w.Header().Set("Content-Type", output.ContentType(req.Format))
	w.Header().Set("X-Definition-Hash", gen.Summary.DefinitionHash)
	w.Header().Set("X-Row-Count", strconv.Itoa(gen.Summary.RowCount))
	w.Header().Set("X-Cache", cacheHeader(gen.Summary.Cached))
	if err := output.Write(w, req.Format, gen.Result); err != nil {
		logger.Log.WithError(err).Error("failed to write dataset response")
	}
}

func (h *HTTPHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	result := h.service.Validate(req.Definition)
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

func (h *HTTPHandler) handleCodelists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Codelists())
}

func (h *HTTPHandler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	job, err := h.runner.Enqueue(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "failed to enqueue dataset job")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *HTTPHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := h.listLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	jobs, err := h.runner.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, err, "failed to list dataset jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *HTTPHandler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.runner.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "failed to fetch dataset job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *HTTPHandler) handleJobResult(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = output.FormatCSV
	}
	if !supportedFormat(format) {
		http.Error(w, "format "+strconv.Quote(format)+" not supported", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	result, err := h.runner.Result(r.Context(), id)
	if errors.Is(err, ErrJobNotFinished) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.writeError(w, err, "failed to fetch dataset job result")
		return
	}

	w.Header().Set("Content-Type", output.ContentType(format))
	w.Header().Set("X-Row-Count", strconv.Itoa(result.Len()))
	if err := output.Write(w, format, result); err != nil {
		logger.Log.WithError(err).Error("failed to write dataset job result")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error, msg string) {
	if IsValidationError(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "dataset job not found", http.StatusNotFound)
		return
	}
	logger.Log.WithError(err).Error(msg)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func cacheHeader(cached bool) string {
	if cached {
		return "HIT"
	}
	return "MISS"
}
