package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"biovault.org/internal/recruiting"
)

func (a *API) listProspects(w http.ResponseWriter, r *http.Request) {
	list, err := a.recruiting.Prospects(r.Context(), a.actor(r), r.URL.Query().Get("status"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type addProspectRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Source    string `json:"source"`
	Notes     string `json:"notes"`
}

func (a *API) addProspect(w http.ResponseWriter, r *http.Request) {
	var req addProspectRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.recruiting.AddProspect(r.Context(), a.actor(r), recruiting.AddProspectInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Source:    req.Source,
		Notes:     req.Notes,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) getProspect(w http.ResponseWriter, r *http.Request) {
	p, err := a.recruiting.Prospect(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type prospectUpdateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Source    *string `json:"source"`
	Status    *string `json:"status"`
	Notes     *string `json:"notes"`
}

func (a *API) updateProspect(w http.ResponseWriter, r *http.Request) {
	var req prospectUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.recruiting.UpdateProspect(r.Context(), a.actor(r), mux.Vars(r)["id"], recruiting.ProspectUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Source:    req.Source,
		Status:    req.Status,
		Notes:     req.Notes,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) listContactLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := a.recruiting.ContactLogs(r.Context(), a.actor(r), r.URL.Query().Get("prospect_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

type logContactRequest struct {
	ProspectID string `json:"prospect_id"`
	Method     string `json:"method"`
	Outcome    string `json:"outcome"`
	Notes      string `json:"notes"`
}

func (a *API) logContact(w http.ResponseWriter, r *http.Request) {
	var req logContactRequest
	if !a.decode(w, r, &req) {
		return
	}
	cl, err := a.recruiting.LogContact(r.Context(), a.actor(r), recruiting.LogContactInput{
		ProspectID: req.ProspectID,
		Method:     req.Method,
		Outcome:    req.Outcome,
		Notes:      req.Notes,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cl)
}

func (a *API) listReferrals(w http.ResponseWriter, r *http.Request) {
	refs, err := a.recruiting.Referrals(r.Context(), a.actor(r), r.URL.Query().Get("prospect_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

type addReferralRequest struct {
	ProspectID     string `json:"prospect_id"`
	ReferringDonor string `json:"referring_donor"`
}

func (a *API) addReferral(w http.ResponseWriter, r *http.Request) {
	var req addReferralRequest
	if !a.decode(w, r, &req) {
		return
	}
	ref, err := a.recruiting.AddReferral(r.Context(), a.actor(r), recruiting.AddReferralInput{
		ProspectID:     req.ProspectID,
		ReferringDonor: req.ReferringDonor,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

type referralUpdateRequest struct {
	RewardIssued *bool `json:"reward_issued"`
}

func (a *API) updateReferral(w http.ResponseWriter, r *http.Request) {
	var req referralUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	ref, err := a.recruiting.UpdateReferral(r.Context(), a.actor(r), mux.Vars(r)["id"], recruiting.ReferralUpdate{
		RewardIssued: req.RewardIssued,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}
