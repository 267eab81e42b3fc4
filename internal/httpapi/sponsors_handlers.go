package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"biovault.org/internal/sponsors"
)

func (a *API) listSponsorProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := a.sponsors.SponsorProfiles(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type sponsorProfileRequest struct {
	Organization string `json:"organization"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	Address      string `json:"address"`
}

func (a *API) createSponsorProfile(w http.ResponseWriter, r *http.Request) {
	var req sponsorProfileRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.sponsors.CreateSponsorProfile(r.Context(), a.actor(r), sponsors.SponsorProfileInput{
		Organization: req.Organization,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Address:      req.Address,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) getSponsorProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.sponsors.SponsorProfile(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type sponsorProfileUpdateRequest struct {
	Organization *string `json:"organization"`
	ContactEmail *string `json:"contact_email"`
	ContactPhone *string `json:"contact_phone"`
	Address      *string `json:"address"`
}

func (a *API) updateSponsorProfile(w http.ResponseWriter, r *http.Request) {
	var req sponsorProfileUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.sponsors.UpdateSponsorProfile(r.Context(), a.actor(r), mux.Vars(r)["id"], sponsors.SponsorProfileUpdate{
		Organization: req.Organization,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Address:      req.Address,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) listResearcherProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := a.sponsors.ResearcherProfiles(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type researcherProfileRequest struct {
	Institution string `json:"institution"`
	Department  string `json:"department"`
	ORCID       string `json:"orcid"`
}

func (a *API) createResearcherProfile(w http.ResponseWriter, r *http.Request) {
	var req researcherProfileRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.sponsors.CreateResearcherProfile(r.Context(), a.actor(r), sponsors.ResearcherProfileInput{
		Institution: req.Institution,
		Department:  req.Department,
		ORCID:       req.ORCID,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) getResearcherProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.sponsors.ResearcherProfile(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type researcherProfileUpdateRequest struct {
	Institution *string `json:"institution"`
	Department  *string `json:"department"`
	ORCID       *string `json:"orcid"`
}

func (a *API) updateResearcherProfile(w http.ResponseWriter, r *http.Request) {
	var req researcherProfileUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.sponsors.UpdateResearcherProfile(r.Context(), a.actor(r), mux.Vars(r)["id"], sponsors.ResearcherProfileUpdate{
		Institution: req.Institution,
		Department:  req.Department,
		ORCID:       req.ORCID,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) listDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := a.sponsors.Drafts(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}

type draftRequest struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Body    string `json:"body"`
}

func (a *API) createDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if !a.decode(w, r, &req) {
		return
	}
	d, err := a.sponsors.CreateDraft(r.Context(), a.actor(r), sponsors.DraftInput{
		Title:   req.Title,
		Summary: req.Summary,
		Body:    req.Body,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) getDraft(w http.ResponseWriter, r *http.Request) {
	d, err := a.sponsors.Draft(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type draftUpdateRequest struct {
	Title   *string `json:"title"`
	Summary *string `json:"summary"`
	Body    *string `json:"body"`
	Status  *string `json:"status"`
}

func (a *API) updateDraft(w http.ResponseWriter, r *http.Request) {
	var req draftUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	d, err := a.sponsors.UpdateDraft(r.Context(), a.actor(r), mux.Vars(r)["id"], sponsors.ProtocolDraftUpdate{
		Title:   req.Title,
		Summary: req.Summary,
		Body:    req.Body,
		Status:  req.Status,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) listSampleRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.sponsors.SampleRequests(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

type sampleRequestRequest struct {
	SampleTypeID  string `json:"sample_type_id"`
	Quantity      int    `json:"quantity"`
	Criteria      string `json:"criteria"`
	Justification string `json:"justification"`
}

func (a *API) createSampleRequest(w http.ResponseWriter, r *http.Request) {
	var req sampleRequestRequest
	if !a.decode(w, r, &req) {
		return
	}
	sr, err := a.sponsors.CreateSampleRequest(r.Context(), a.actor(r), sponsors.SampleRequestInput{
		SampleTypeID:  req.SampleTypeID,
		Quantity:      req.Quantity,
		Criteria:      req.Criteria,
		Justification: req.Justification,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sr)
}

func (a *API) getSampleRequest(w http.ResponseWriter, r *http.Request) {
	sr, err := a.sponsors.SampleRequest(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sr)
}

type sampleRequestUpdateRequest struct {
	Quantity      *int    `json:"quantity"`
	Criteria      *string `json:"criteria"`
	Justification *string `json:"justification"`
	Status        *string `json:"status"`
}

func (a *API) updateSampleRequest(w http.ResponseWriter, r *http.Request) {
	var req sampleRequestUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	sr, err := a.sponsors.UpdateSampleRequest(r.Context(), a.actor(r), mux.Vars(r)["id"], sponsors.SampleRequestUpdate{
		Quantity:      req.Quantity,
		Criteria:      req.Criteria,
		Justification: req.Justification,
		Status:        req.Status,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sr)
}
