package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"biovault.org/internal/donors"
)

func (a *API) listDonors(w http.ResponseWriter, r *http.Request) {
	list, err := a.donors.Donors(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type registerDonorRequest struct {
	ActorID     string     `json:"actor_id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	BloodType   string     `json:"blood_type"`
	HLAType     string     `json:"hla_type"`
	HeightCm    *float64   `json:"height_cm"`
	WeightKg    *float64   `json:"weight_kg"`
}

func (a *API) registerDonor(w http.ResponseWriter, r *http.Request) {
	var req registerDonorRequest
	if !a.decode(w, r, &req) {
		return
	}
	d, err := a.donors.RegisterDonor(r.Context(), a.actor(r), donors.RegisterDonorInput{
		ActorID:     req.ActorID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		BloodType:   req.BloodType,
		HLAType:     req.HLAType,
		HeightCm:    req.HeightCm,
		WeightKg:    req.WeightKg,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) myDonor(w http.ResponseWriter, r *http.Request) {
	d, err := a.donors.DonorForActor(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) getDonor(w http.ResponseWriter, r *http.Request) {
	d, err := a.donors.Donor(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type donorUpdateRequest struct {
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	BloodType   *string    `json:"blood_type"`
	HLAType     *string    `json:"hla_type"`
	HeightCm    *float64   `json:"height_cm"`
	WeightKg    *float64   `json:"weight_kg"`
	Status      *string    `json:"status"`
}

func (a *API) updateDonor(w http.ResponseWriter, r *http.Request) {
	var req donorUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	d, err := a.donors.UpdateDonor(r.Context(), a.actor(r), mux.Vars(r)["id"], donors.DonorUpdate{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		BloodType:   req.BloodType,
		HLAType:     req.HLAType,
		HeightCm:    req.HeightCm,
		WeightKg:    req.WeightKg,
		Status:      req.Status,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) getHistory(w http.ResponseWriter, r *http.Request) {
	h, err := a.donors.History(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

type historyRequest struct {
	Conditions    string `json:"conditions"`
	Medications   string `json:"medications"`
	Allergies     string `json:"allergies"`
	SurgicalNotes string `json:"surgical_notes"`
}

func (a *API) putHistory(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if !a.decode(w, r, &req) {
		return
	}
	h, err := a.donors.RecordHistory(r.Context(), a.actor(r), mux.Vars(r)["id"], donors.HistoryInput{
		Conditions:    req.Conditions,
		Medications:   req.Medications,
		Allergies:     req.Allergies,
		SurgicalNotes: req.SurgicalNotes,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (a *API) listDonationTypes(w http.ResponseWriter, r *http.Request) {
	types, err := a.donors.DonationTypes(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

type createDonationTypeRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	MinIntervalDays int    `json:"min_interval_days"`
}

func (a *API) createDonationType(w http.ResponseWriter, r *http.Request) {
	var req createDonationTypeRequest
	if !a.decode(w, r, &req) {
		return
	}
	dt, err := a.donors.CreateDonationType(r.Context(), a.actor(r), donors.CreateDonationTypeInput{
		Name:            req.Name,
		Description:     req.Description,
		MinIntervalDays: req.MinIntervalDays,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dt)
}

func (a *API) listAppointments(w http.ResponseWriter, r *http.Request) {
	appts, err := a.donors.Appointments(r.Context(), a.actor(r), r.URL.Query().Get("donor_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

type bookAppointmentRequest struct {
	DonorID        string    `json:"donor_id"`
	DonationTypeID string    `json:"donation_type_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Location       string    `json:"location"`
	Notes          string    `json:"notes"`
}

func (a *API) bookAppointment(w http.ResponseWriter, r *http.Request) {
	var req bookAppointmentRequest
	if !a.decode(w, r, &req) {
		return
	}
	appt, err := a.donors.BookAppointment(r.Context(), a.actor(r), donors.BookAppointmentInput{
		DonorID:        req.DonorID,
		DonationTypeID: req.DonationTypeID,
		ScheduledAt:    req.ScheduledAt,
		Location:       req.Location,
		Notes:          req.Notes,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (a *API) getAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := a.donors.Appointment(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type appointmentUpdateRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
	Location    *string    `json:"location"`
	Status      *string    `json:"status"`
	Notes       *string    `json:"notes"`
}

func (a *API) updateAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	appt, err := a.donors.UpdateAppointment(r.Context(), a.actor(r), mux.Vars(r)["id"], donors.AppointmentUpdate{
		ScheduledAt: req.ScheduledAt,
		Location:    req.Location,
		Status:      req.Status,
		Notes:       req.Notes,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (a *API) listDonations(w http.ResponseWriter, r *http.Request) {
	list, err := a.donors.Donations(r.Context(), a.actor(r), r.URL.Query().Get("donor_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type recordDonationRequest struct {
	DonorID       string    `json:"donor_id"`
	AppointmentID string    `json:"appointment_id"`
	TypeID        string    `json:"type_id"`
	VolumeML      int       `json:"volume_ml"`
	CollectedAt   time.Time `json:"collected_at"`
}

func (a *API) recordDonation(w http.ResponseWriter, r *http.Request) {
	var req recordDonationRequest
	if !a.decode(w, r, &req) {
		return
	}
	d, err := a.donors.RecordDonation(r.Context(), a.actor(r), donors.RecordDonationInput{
		DonorID:       req.DonorID,
		AppointmentID: req.AppointmentID,
		TypeID:        req.TypeID,
		VolumeML:      req.VolumeML,
		CollectedAt:   req.CollectedAt,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) getDonation(w http.ResponseWriter, r *http.Request) {
	d, err := a.donors.Donation(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) listSampleTypes(w http.ResponseWriter, r *http.Request) {
	types, err := a.donors.SampleTypes(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

type createSampleTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) createSampleType(w http.ResponseWriter, r *http.Request) {
	var req createSampleTypeRequest
	if !a.decode(w, r, &req) {
		return
	}
	st, err := a.donors.CreateSampleType(r.Context(), a.actor(r), donors.CreateSampleTypeInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (a *API) listSamples(w http.ResponseWriter, r *http.Request) {
	list, err := a.donors.Samples(r.Context(), a.actor(r), r.URL.Query().Get("donation_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type registerSampleRequest struct {
	DonationID   string     `json:"donation_id"`
	SampleTypeID string     `json:"sample_type_id"`
	VolumeML     float64    `json:"volume_ml"`
	StorageRef   string     `json:"storage_ref"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

func (a *API) registerSample(w http.ResponseWriter, r *http.Request) {
	var req registerSampleRequest
	if !a.decode(w, r, &req) {
		return
	}
	s, err := a.donors.RegisterSample(r.Context(), a.actor(r), donors.RegisterSampleInput{
		DonationID:   req.DonationID,
		SampleTypeID: req.SampleTypeID,
		VolumeML:     req.VolumeML,
		StorageRef:   req.StorageRef,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (a *API) getSample(w http.ResponseWriter, r *http.Request) {
	s, err := a.donors.Sample(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type sampleUpdateRequest struct {
	Status     *string    `json:"status"`
	StorageRef *string    `json:"storage_ref"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (a *API) updateSample(w http.ResponseWriter, r *http.Request) {
	var req sampleUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	s, err := a.donors.UpdateSample(r.Context(), a.actor(r), mux.Vars(r)["id"], donors.SampleUpdate{
		Status:     req.Status,
		StorageRef: req.StorageRef,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
