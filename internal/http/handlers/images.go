package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aiakap/travel-planner-v1/internal/domain"
)

type regenerateRequest struct {
	PromptID string `json:"prompt_id"`
}

// RegenerateImage queues a new illustration. The body is optional.
func (a *App) RegenerateImage(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseEntityType(chi.URLParam(r, "entity_type"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req regenerateRequest
	if r.ContentLength != 0 {
		if err := jsonBody(r, &req); err != nil {
			a.error(w, r, http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error())
			return
		}
	}
	job, err := a.Planner.RegenerateImage(r.Context(), kind, chi.URLParam(r, "id"), req.PromptID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, job)
}

func (a *App) ResetImage(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseEntityType(chi.URLParam(r, "entity_type"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	job, err := a.Planner.ResetImage(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, job)
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter domain.JobFilter
	if s := q.Get("status"); s != "" {
		status, err := domain.ParseJobStatus(s)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		filter.Status = status
	}
	if s := q.Get("entity_type"); s != "" {
		kind, err := domain.ParseEntityType(s)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		filter.EntityType = kind
	}
	filter.EntityID = strings.TrimSpace(q.Get("entity_id"))
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			a.error(w, r, http.StatusBadRequest, "invalid_input", "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	jobs, err := a.Jobs.List(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []domain.ImageJob{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": jobs})
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

func (a *App) JobStats(w http.ResponseWriter, r *http.Request) {
	counts, err := a.Jobs.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, counts)
}

func (a *App) ListPrompts(w http.ResponseWriter, r *http.Request) {
	categories := domain.EntityTypes
	if s := r.URL.Query().Get("category"); s != "" {
		kind, err := domain.ParseEntityType(s)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		categories = []domain.EntityType{kind}
	}
	items := []domain.ImagePromptTemplate{}
	for _, c := range categories {
		list, err := a.Prompts.ListByCategory(r.Context(), c)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		items = append(items, list...)
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func jsonBody(r *http.Request, v any) error {
	err := decodeStrict(io.LimitReader(r.Body, maxBodyBytes), v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
