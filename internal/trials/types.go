package trials

import (
	"errors"
	"time"
)

// Study statuses follow the lifecycle draft -> active -> completed/terminated.
const (
	StudyDraft      = "draft"
	StudyActive     = "active"
	StudyCompleted  = "completed"
	StudyTerminated = "terminated"
)

// Study is a clinical trial. SponsorID links the sponsor account; rows
// imported from the legacy system may carry only the free-text SponsorName.
type Study struct {
	ID                    string     `json:"id"`
	ProtocolNumber        string     `json:"protocol_number"`
	Title                 string     `json:"title"`
	Description           string     `json:"description,omitempty"`
	Phase                 string     `json:"phase,omitempty"`
	Status                string     `json:"status"`
	SponsorID             string     `json:"sponsor_id,omitempty"`
	SponsorName           string     `json:"sponsor_name,omitempty"`
	PrincipalInvestigator string     `json:"principal_investigator,omitempty"`
	Public                bool       `json:"public"`
	StartDate             *time.Time `json:"start_date,omitempty"`
	EndDate               *time.Time `json:"end_date,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// StudyUpdate applies optional field changes; nil leaves a field unchanged.
type StudyUpdate struct {
	Title                 *string
	Description           *string
	Phase                 *string
	Status                *string
	SponsorID             *string
	SponsorName           *string
	PrincipalInvestigator *string
	Public                *bool
	StartDate             *time.Time
	EndDate               *time.Time
}

// StudySite is one location running a study. InvestigatorID and
// CoordinatorID are the actors whose site edge reaches the site's records.
type StudySite struct {
	ID             string    `json:"id"`
	StudyID        string    `json:"study_id"`
	Name           string    `json:"name"`
	Address        string    `json:"address,omitempty"`
	InvestigatorID string    `json:"investigator_id,omitempty"`
	CoordinatorID  string    `json:"coordinator_id,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type StudySiteUpdate struct {
	Name           *string
	Address        *string
	InvestigatorID *string
	CoordinatorID  *string
	Status         *string
}

// Participant is an enrolled subject at a study site.
type Participant struct {
	ID            string     `json:"id"`
	ParticipantID string     `json:"participant_id"`
	StudyID       string     `json:"study_id"`
	SiteID        string     `json:"site_id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Status        string     `json:"status"`
	EnrolledAt    *time.Time `json:"enrolled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ParticipantUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	Status    *string
}

// Visit is a scheduled or completed participant visit.
type Visit struct {
	ID            string     `json:"id"`
	ParticipantID string     `json:"participant_id"`
	ScheduledDate time.Time  `json:"scheduled_date"`
	ActualDate    *time.Time `json:"actual_date,omitempty"`
	Status        string     `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type VisitUpdate struct {
	ScheduledDate *time.Time
	ActualDate    *time.Time
	Status        *string
	Notes         *string
}

// AdverseEvent severities.
const (
	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// AdverseEvent records a safety event for a participant.
type AdverseEvent struct {
	ID            string     `json:"id"`
	ParticipantID string     `json:"participant_id"`
	Description   string     `json:"description"`
	Severity      string     `json:"severity"`
	Serious       bool       `json:"serious"`
	ReportedBy    string     `json:"reported_by,omitempty"`
	OnsetDate     *time.Time `json:"onset_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// StudyDocument references a protocol artifact; the blob lives in external
// storage, only the URI is kept here.
type StudyDocument struct {
	ID           string    `json:"id"`
	StudyID      string    `json:"study_id"`
	Title        string    `json:"title"`
	DocumentType string    `json:"document_type"`
	Version      string    `json:"version,omitempty"`
	URI          string    `json:"uri"`
	UploadedBy   string    `json:"uploaded_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	ErrNotFound     = errors.New("trials: not found")
	ErrInvalidInput = errors.New("trials: invalid input")
	ErrConflict     = errors.New("trials: conflict")
)
