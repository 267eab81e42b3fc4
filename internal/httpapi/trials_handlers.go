package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"biovault.org/internal/trials"
)

func (a *API) listStudies(w http.ResponseWriter, r *http.Request) {
	studies, err := a.trials.Studies(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, studies)
}

type createStudyRequest struct {
	ProtocolNumber        string `json:"protocol_number"`
	Title                 string `json:"title"`
	Description           string `json:"description"`
	Phase                 string `json:"phase"`
	SponsorID             string `json:"sponsor_id"`
	SponsorName           string `json:"sponsor_name"`
	PrincipalInvestigator string `json:"principal_investigator"`
	Public                bool   `json:"public"`
}

func (a *API) createStudy(w http.ResponseWriter, r *http.Request) {
	var req createStudyRequest
	if !a.decode(w, r, &req) {
		return
	}
	st, err := a.trials.CreateStudy(r.Context(), a.actor(r), trials.CreateStudyInput{
		ProtocolNumber:        req.ProtocolNumber,
		Title:                 req.Title,
		Description:           req.Description,
		Phase:                 req.Phase,
		SponsorID:             req.SponsorID,
		SponsorName:           req.SponsorName,
		PrincipalInvestigator: req.PrincipalInvestigator,
		Public:                req.Public,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (a *API) getStudy(w http.ResponseWriter, r *http.Request) {
	st, err := a.trials.Study(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type studyUpdateRequest struct {
	Title                 *string    `json:"title"`
	Description           *string    `json:"description"`
	Phase                 *string    `json:"phase"`
	Status                *string    `json:"status"`
	SponsorID             *string    `json:"sponsor_id"`
	SponsorName           *string    `json:"sponsor_name"`
	PrincipalInvestigator *string    `json:"principal_investigator"`
	Public                *bool      `json:"public"`
	StartDate             *time.Time `json:"start_date"`
	EndDate               *time.Time `json:"end_date"`
}

func (a *API) updateStudy(w http.ResponseWriter, r *http.Request) {
	var req studyUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	st, err := a.trials.UpdateStudy(r.Context(), a.actor(r), mux.Vars(r)["id"], trials.StudyUpdate{
		Title:                 req.Title,
		Description:           req.Description,
		Phase:                 req.Phase,
		Status:                req.Status,
		SponsorID:             req.SponsorID,
		SponsorName:           req.SponsorName,
		PrincipalInvestigator: req.PrincipalInvestigator,
		Public:                req.Public,
		StartDate:             req.StartDate,
		EndDate:               req.EndDate,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := a.trials.Sites(r.Context(), a.actor(r), r.URL.Query().Get("study_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sites)
}

type createSiteRequest struct {
	StudyID        string `json:"study_id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	InvestigatorID string `json:"investigator_id"`
	CoordinatorID  string `json:"coordinator_id"`
}

func (a *API) createSite(w http.ResponseWriter, r *http.Request) {
	var req createSiteRequest
	if !a.decode(w, r, &req) {
		return
	}
	site, err := a.trials.CreateSite(r.Context(), a.actor(r), trials.CreateSiteInput{
		StudyID:        req.StudyID,
		Name:           req.Name,
		Address:        req.Address,
		InvestigatorID: req.InvestigatorID,
		CoordinatorID:  req.CoordinatorID,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, site)
}

func (a *API) getSite(w http.ResponseWriter, r *http.Request) {
	site, err := a.trials.Site(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

type siteUpdateRequest struct {
	Name           *string `json:"name"`
	Address        *string `json:"address"`
	InvestigatorID *string `json:"investigator_id"`
	CoordinatorID  *string `json:"coordinator_id"`
	Status         *string `json:"status"`
}

func (a *API) updateSite(w http.ResponseWriter, r *http.Request) {
	var req siteUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	site, err := a.trials.UpdateSite(r.Context(), a.actor(r), mux.Vars(r)["id"], trials.StudySiteUpdate{
		Name:           req.Name,
		Address:        req.Address,
		InvestigatorID: req.InvestigatorID,
		CoordinatorID:  req.CoordinatorID,
		Status:         req.Status,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (a *API) listParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := a.trials.Participants(r.Context(), a.actor(r), r.URL.Query().Get("study_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

type enrollRequest struct {
	ParticipantID string `json:"participant_id"`
	SiteID        string `json:"site_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
}

func (a *API) enrollParticipant(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.trials.Enroll(r.Context(), a.actor(r), trials.EnrollInput{
		ParticipantID: req.ParticipantID,
		SiteID:        req.SiteID,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Phone:         req.Phone,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) getParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := a.trials.Participant(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type participantUpdateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Status    *string `json:"status"`
}

func (a *API) updateParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.trials.UpdateParticipant(r.Context(), a.actor(r), mux.Vars(r)["id"], trials.ParticipantUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Status:    req.Status,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) listVisits(w http.ResponseWriter, r *http.Request) {
	visits, err := a.trials.Visits(r.Context(), a.actor(r), r.URL.Query().Get("participant_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visits)
}

type scheduleVisitRequest struct {
	ParticipantID string    `json:"participant_id"`
	ScheduledDate time.Time `json:"scheduled_date"`
	Notes         string    `json:"notes"`
}

func (a *API) scheduleVisit(w http.ResponseWriter, r *http.Request) {
	var req scheduleVisitRequest
	if !a.decode(w, r, &req) {
		return
	}
	v, err := a.trials.ScheduleVisit(r.Context(), a.actor(r), trials.ScheduleVisitInput{
		ParticipantID: req.ParticipantID,
		ScheduledDate: req.ScheduledDate,
		Notes:         req.Notes,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) getVisit(w http.ResponseWriter, r *http.Request) {
	v, err := a.trials.Visit(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type visitUpdateRequest struct {
	ScheduledDate *time.Time `json:"scheduled_date"`
	ActualDate    *time.Time `json:"actual_date"`
	Status        *string    `json:"status"`
	Notes         *string    `json:"notes"`
}

func (a *API) updateVisit(w http.ResponseWriter, r *http.Request) {
	var req visitUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	v, err := a.trials.UpdateVisit(r.Context(), a.actor(r), mux.Vars(r)["id"], trials.VisitUpdate{
		ScheduledDate: req.ScheduledDate,
		ActualDate:    req.ActualDate,
		Status:        req.Status,
		Notes:         req.Notes,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) listAdverseEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.trials.AdverseEvents(r.Context(), a.actor(r), r.URL.Query().Get("participant_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type reportAdverseEventRequest struct {
	ParticipantID string     `json:"participant_id"`
	Description   string     `json:"description"`
	Severity      string     `json:"severity"`
	Serious       bool       `json:"serious"`
	OnsetDate     *time.Time `json:"onset_date"`
}

func (a *API) reportAdverseEvent(w http.ResponseWriter, r *http.Request) {
	var req reportAdverseEventRequest
	if !a.decode(w, r, &req) {
		return
	}
	ev, err := a.trials.ReportAdverseEvent(r.Context(), a.actor(r), trials.ReportAdverseEventInput{
		ParticipantID: req.ParticipantID,
		Description:   req.Description,
		Severity:      req.Severity,
		Serious:       req.Serious,
		OnsetDate:     req.OnsetDate,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (a *API) getAdverseEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := a.trials.AdverseEvent(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := a.trials.Documents(r.Context(), a.actor(r), r.URL.Query().Get("study_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

type addDocumentRequest struct {
	StudyID      string `json:"study_id"`
	Title        string `json:"title"`
	DocumentType string `json:"document_type"`
	Version      string `json:"version"`
	URI          string `json:"uri"`
}

func (a *API) addDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if !a.decode(w, r, &req) {
		return
	}
	doc, err := a.trials.AddDocument(r.Context(), a.actor(r), trials.AddDocumentInput{
		StudyID:      req.StudyID,
		Title:        req.Title,
		DocumentType: req.DocumentType,
		Version:      req.Version,
		URI:          req.URI,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := a.trials.Document(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
