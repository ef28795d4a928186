package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/lifecycle"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/store"
)

const maxListLimit = 500

func leadID(r *http.Request, op string) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.KindValidation, op, "invalid lead id %q", raw)
	}
	return id, nil
}

// parseFilter reads ?status=a,b&niche=&location=&business_type=&has_email=&limit=&offset=.
func parseFilter(r *http.Request) (store.LeadFilter, error) {
	const op = "server: list leads"
	q := r.URL.Query()
	f := store.LeadFilter{
		Niche:        strings.TrimSpace(q.Get("niche")),
		Location:     strings.TrimSpace(q.Get("location")),
		BusinessType: strings.TrimSpace(q.Get("business_type")),
	}
	for _, raw := range q["status"] {
		for _, part := range strings.Split(raw, ",") {
			st := model.Status(strings.TrimSpace(part))
			if st == "" {
				continue
			}
			if !st.Valid() {
				return f, apperr.Newf(apperr.KindValidation, op, "unknown status %q", st)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if v := q.Get("has_email"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, apperr.Newf(apperr.KindValidation, op, "invalid has_email %q", v)
		}
		f.HasEmail = &b
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return f, nil
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Newf(apperr.KindValidation, "server: list leads", "invalid %s %q", name, v)
	}
	return n, nil
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	leads, err := s.store.ListLeads(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	id, err := leadID(r, "server: get lead")
	if err != nil {
		writeError(w, r, err)
		return
	}
	lead, err := s.store.GetLead(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// patchRequest carries operator edits to contact fields. An empty string
// clears the field, which lets enrichment fill it again. Status changes go
// through /reset so they stay on the state machine.
type patchRequest struct {
	Name         *string `json:"name"`
	BusinessName *string `json:"business_name"`
	Email        *string `json:"email" validate:"omitempty,email"`
	Phone        *string `json:"phone"`
	Address      *string `json:"address"`
	Website      *string `json:"website" validate:"omitempty,url"`
}

func (p *patchRequest) normalize() {
	p.Name = trimmed(p.Name)
	p.BusinessName = trimmed(p.BusinessName)
	p.Email = trimmed(p.Email)
	p.Phone = trimmed(p.Phone)
	p.Address = trimmed(p.Address)
	p.Website = trimmed(p.Website)
	if p.Email != nil {
		lower := strings.ToLower(*p.Email)
		p.Email = &lower
	}
}

func (p patchRequest) toPatch() (store.LeadPatch, bool) {
	patch := store.LeadPatch{
		Name:         p.Name,
		BusinessName: p.BusinessName,
		Email:        p.Email,
		Phone:        p.Phone,
		Address:      p.Address,
		Website:      p.Website,
	}
	changed := patch.Name != nil || patch.BusinessName != nil || patch.Email != nil ||
		patch.Phone != nil || patch.Address != nil || patch.Website != nil
	return patch, changed
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func (s *Server) handlePatchLead(w http.ResponseWriter, r *http.Request) {
	const op = "server: patch lead"
	id, err := leadID(r, op)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req patchRequest
	if err := s.decode(w, r, op, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch, ok := req.toPatch()
	if !ok {
		writeError(w, r, apperr.Validation(op, "no fields to update"))
		return
	}

	unlock := s.locks.Lock(id)
	defer unlock()
	lead, err := s.store.UpdateLead(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	id, err := leadID(r, "server: delete lead")
	if err != nil {
		writeError(w, r, err)
		return
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	if err := s.store.DeleteLead(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetRequest struct {
	Status model.Status `json:"status" validate:"required,oneof=new contacted replied_yes replied_no prototype_sent in_conversation"`
}

func (s *Server) handleResetLead(w http.ResponseWriter, r *http.Request) {
	const op = "server: reset lead"
	id, err := leadID(r, op)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req resetRequest
	if err := s.decode(w, r, op, &req); err != nil {
		writeError(w, r, err)
		return
	}

	unlock := s.locks.Lock(id)
	defer unlock()
	lead, err := s.store.GetLead(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := lifecycle.Reset(r.Context(), s.store, lead, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	id, err := leadID(r, "server: list campaigns")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.store.GetLead(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.store.ListCampaigns(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []model.EmailCampaign{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListPrototypes(w http.ResponseWriter, r *http.Request) {
	id, err := leadID(r, "server: list prototypes")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.store.GetLead(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.store.ListPrototypes(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []model.WebsitePrototype{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req discovery.Request
	if err := s.decode(w, r, "server: search", &req); err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := s.runner.Discover(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func knownStage(stage string) bool {
	for _, st := range pipeline.Stages {
		if st == stage {
			return true
		}
	}
	return false
}

func (s *Server) handleRunStage(w http.ResponseWriter, r *http.Request) {
	stage := chi.URLParam(r, "stage")
	if !knownStage(stage) {
		writeError(w, r, apperr.NotFound("server: run stage", "stage", stage))
		return
	}
	rep, err := s.runner.Run(r.Context(), stage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleRunLeadStage runs one stage for a single lead. The pipeline takes
// the lead's lock itself, so the handler must not hold it.
func (s *Server) handleRunLeadStage(w http.ResponseWriter, r *http.Request) {
	const op = "server: run lead stage"
	id, err := leadID(r, op)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stage := chi.URLParam(r, "stage")
	if !knownStage(stage) {
		writeError(w, r, apperr.NotFound(op, "stage", stage))
		return
	}
	rep, err := s.runner.RunLead(r.Context(), stage, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
