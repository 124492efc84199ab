package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/catalog"
	"github.com/starford/kbsync/internal/deletion"
	"github.com/starford/kbsync/internal/kbservice"
)

const (
	maxUploadBytes = 50 << 20 // 50 MB
	maxNoteBytes   = 1 << 20
)

// Handler holds API route handlers.
type Handler struct {
	svc *kbservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *kbservice.Service) *Handler {
	return &Handler{svc: svc}
}

// UploadDocument handles POST /api/documents.
//
//	@Summary		Upload a document into its category partition
//	@Tags			documents
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"Document"
//	@Param			extension	formData	string	true	"Declared extension"
//	@Param			category	formData	string	true	"Catalog category"
//	@Param			overwrite	formData	bool	false	"Replace an existing object"
//	@Param			priority	formData	int		false	"Search priority 1-3"
//	@Success		201			{object}	WriteResponse
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		415			{object}	errResponse
//	@Failure		502			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	req := kbservice.UploadRequest{
		Filename:          header.Filename,
		DeclaredExtension: r.FormValue("extension"),
		Category:          r.FormValue("category"),
		Data:              data,
	}
	if v := r.FormValue("overwrite"); v != "" {
		if req.Overwrite, err = strconv.ParseBool(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("overwrite must be a boolean"))
			return
		}
	}
	if v := r.FormValue("priority"); v != "" {
		if req.Priority, err = strconv.Atoi(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("priority must be an integer"))
			return
		}
	}

	res, err := h.svc.UploadDocument(r.Context(), req)
	if err != nil {
		if res != nil {
			// Stored, but the conversion could not be started.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":  err.Error(),
				"code":   apperr.KindOf(err).Code(),
				"result": res,
			})
			return
		}
		writeError(w, "upload", err)
		return
	}
	status := http.StatusCreated
	if res.Job != nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// SaveNote handles POST /api/notes.
//
//	@Summary		Save a structured note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveNoteRequest	true	"Note"
//	@Success		201		{object}	WriteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) SaveNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBytes)
	var req SaveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	n, err := req.note()
	if err != nil {
		writeError(w, "save note", err)
		return
	}
	res, err := h.svc.SaveNote(r.Context(), n, req.Overwrite)
	if err != nil {
		writeError(w, "save note", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Catalog handles GET /api/catalog.
//
//	@Summary		List stored artifacts across all partitions
//	@Tags			catalog
//	@Produce		json
//	@Param			q			query		string	false	"Name or category substring"
//	@Param			kind		query		string	false	"document, note or all"
//	@Param			category	query		string	false	"Category or all"
//	@Success		200			{object}	CatalogResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog [get]
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := catalog.NewFilter(q.Get("q"), q.Get("kind"), q.Get("category"))
	if err != nil {
		writeError(w, "catalog", err)
		return
	}
	view, err := h.svc.Catalog(r.Context(), f)
	if err != nil {
		writeError(w, "catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DeleteArtifact handles DELETE /api/artifacts/{bucket}/{folder}/{name}.
//
//	@Summary		Delete an artifact from the index, then the store
//	@Tags			catalog
//	@Produce		json
//	@Param			bucket	path		string	true	"Bucket"
//	@Param			folder	path		string	true	"Folder"
//	@Param			name	path		string	true	"Object name"
//	@Success		200		{object}	deletion.Result
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts/{bucket}/{folder}/{name} [delete]
func (h *Handler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	req := deletion.Request{
		Bucket: chi.URLParam(r, "bucket"),
		Folder: chi.URLParam(r, "folder"),
		Name:   chi.URLParam(r, "name"),
	}
	res, err := h.svc.Delete(r.Context(), req)
	if err != nil {
		writeError(w, "delete", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StartJob handles POST /api/jobs.
//
//	@Summary		Re-trigger the conversion of a stored tabular file
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		StartJobRequest	true	"Source object"
//	@Success		202		{object}	transform.Job
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/jobs [post]
func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBytes)
	var req StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	job, err := h.svc.StartTransform(r.Context(), req.Bucket, req.Folder, req.Name)
	if err != nil {
		writeError(w, "start job", err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// ListJobs handles GET /api/jobs.
//
//	@Summary		List tracked conversion jobs
//	@Tags			jobs
//	@Produce		json
//	@Success		200	{object}	JobListResponse
//	@Security		BearerAuth
//	@Router			/jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: h.svc.Jobs()})
}

// GetJob handles GET /api/jobs/{id}.
//
//	@Summary		Get a conversion job
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	transform.Job
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Job(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob handles DELETE /api/jobs/{id}.
//
//	@Summary		Stop polling for a conversion job
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	transform.Job
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/jobs/{id} [delete]
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.CancelJob(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "cancel job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Search handles GET /api/search.
//
//	@Summary		Search the local index
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// ResetIndex handles POST /api/index/reset.
//
//	@Summary		Drop every index record
//	@Tags			index
//	@Success		204	"Index reset"
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/index/reset [post]
func (h *Handler) ResetIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetIndex(r.Context()); err != nil {
		writeError(w, "reset index", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RebuildIndex handles POST /api/index/rebuild.
//
//	@Summary		Reset the index and re-add every stored artifact
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	kbservice.ReindexReport
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/index/rebuild [post]
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Reindex(r.Context())
	if err != nil {
		writeError(w, "rebuild index", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseDate(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "save note", "", fmt.Sprintf("%s must be YYYY-MM-DD", field))
	}
	return &t, nil
}
