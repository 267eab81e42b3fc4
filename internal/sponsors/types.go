package sponsors

import (
	"errors"
	"time"
)

// SponsorProfile is the organization profile of a sponsor account.
type SponsorProfile struct {
	ID           string    `json:"id"`
	ActorID      string    `json:"actor_id"`
	Organization string    `json:"organization"`
	ContactEmail string    `json:"contact_email,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SponsorProfileUpdate struct {
	Organization *string
	ContactEmail *string
	ContactPhone *string
	Address      *string
}

// ResearcherProfile is the institutional profile of a researcher account.
type ResearcherProfile struct {
	ID          string    `json:"id"`
	ActorID     string    `json:"actor_id"`
	Institution string    `json:"institution"`
	Department  string    `json:"department,omitempty"`
	ORCID       string    `json:"orcid,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ResearcherProfileUpdate struct {
	Institution *string
	Department  *string
	ORCID       *string
}

// ProtocolDraft statuses.
const (
	DraftInProgress = "in_progress"
	DraftSubmitted  = "submitted"
	DraftApproved   = "approved"
	DraftRejected   = "rejected"
)

// ProtocolDraft is a sponsor-authored study protocol awaiting review.
type ProtocolDraft struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Body      string    `json:"body,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProtocolDraftUpdate struct {
	Title   *string
	Summary *string
	Body    *string
	Status  *string
}

// CustomSampleRequest statuses.
const (
	RequestPending   = "pending"
	RequestReviewing = "reviewing"
	RequestApproved  = "approved"
	RequestDeclined  = "declined"
	RequestFulfilled = "fulfilled"
)

// CustomSampleRequest is a researcher's ask for samples outside the
// standard catalog.
type CustomSampleRequest struct {
	ID            string    `json:"id"`
	ActorID       string    `json:"actor_id"`
	SampleTypeID  string    `json:"sample_type_id,omitempty"`
	Quantity      int       `json:"quantity"`
	Criteria      string    `json:"criteria"`
	Justification string    `json:"justification,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type SampleRequestUpdate struct {
	Quantity      *int
	Criteria      *string
	Justification *string
	Status        *string
}

var (
	ErrNotFound     = errors.New("sponsors: not found")
	ErrInvalidInput = errors.New("sponsors: invalid input")
	ErrConflict     = errors.New("sponsors: conflict")
)
