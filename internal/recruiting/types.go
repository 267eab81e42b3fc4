package recruiting

import (
	"errors"
	"time"
)

// Prospect pipeline statuses.
const (
	ProspectNew        = "new"
	ProspectContacted  = "contacted"
	ProspectScreening  = "screening"
	ProspectQualified  = "qualified"
	ProspectConverted  = "converted"
	ProspectDisengaged = "disengaged"
)

// Prospect is a potential donor moving through the recruiting pipeline.
type Prospect struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Source    string    `json:"source,omitempty"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProspectUpdate applies optional field changes; nil leaves a field unchanged.
type ProspectUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	Source    *string
	Status    *string
	Notes     *string
}

// ContactLog records one outreach attempt against a prospect.
type ContactLog struct {
	ID          string    `json:"id"`
	ProspectID  string    `json:"prospect_id"`
	Method      string    `json:"method"`
	Outcome     string    `json:"outcome,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	ContactedBy string    `json:"contacted_by"`
	ContactedAt time.Time `json:"contacted_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Referral links a prospect to the donor who referred them.
type Referral struct {
	ID             string    `json:"id"`
	ProspectID     string    `json:"prospect_id"`
	ReferringDonor string    `json:"referring_donor"`
	RewardIssued   bool      `json:"reward_issued"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ReferralUpdate struct {
	RewardIssued *bool
}

var (
	ErrNotFound     = errors.New("recruiting: not found")
	ErrInvalidInput = errors.New("recruiting: invalid input")
	ErrConflict     = errors.New("recruiting: conflict")
)
