package donors

import (
	"errors"
	"math"
	"time"
)

// Donor statuses.
const (
	DonorActive     = "active"
	DonorDeferred   = "deferred"
	DonorInactive   = "inactive"
	DonorDisallowed = "disallowed"
)

// Donor is a registered sample donor. ActorID links the donor's account
// and is the owner column for access checks; DonorID is the human-facing
// business number (DN-xxxxxxxx).
type Donor struct {
	ID          string     `json:"id"`
	DonorID     string     `json:"donor_id"`
	ActorID     string     `json:"actor_id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	BloodType   string     `json:"blood_type,omitempty"`
	HLAType     string     `json:"hla_type,omitempty"`
	HeightCm    *float64   `json:"height_cm,omitempty"`
	WeightKg    *float64   `json:"weight_kg,omitempty"`
	BMI         *float64   `json:"bmi,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DonorUpdate applies optional field changes; nil leaves a field unchanged.
// BMI is derived and never settable directly.
type DonorUpdate struct {
	FirstName   *string
	LastName    *string
	DateOfBirth *time.Time
	BloodType   *string
	HLAType     *string
	HeightCm    *float64
	WeightKg    *float64
	Status      *string
}

// ComputeBMI derives body mass index from height in centimeters and weight
// in kilograms, rounded to two decimals. Either input missing or a
// non-positive height yields nil.
func ComputeBMI(heightCm, weightKg *float64) *float64 {
	if heightCm == nil || weightKg == nil {
		return nil
	}
	if *heightCm <= 0 {
		return nil
	}
	m := *heightCm / 100
	bmi := math.Round(*weightKg/(m*m)*100) / 100
	return &bmi
}

// MedicalHistory is the one-to-one health record of a donor.
type MedicalHistory struct {
	ID             string    `json:"id"`
	DonorID        string    `json:"donor_id"`
	Conditions     string    `json:"conditions,omitempty"`
	Medications    string    `json:"medications,omitempty"`
	Allergies      string    `json:"allergies,omitempty"`
	SurgicalNotes  string    `json:"surgical_notes,omitempty"`
	LastReviewedAt time.Time `json:"last_reviewed_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DonationType is reference data: whole blood, plasma, platelets and so on.
type DonationType struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	MinIntervalDays int       `json:"min_interval_days"`
	CreatedAt       time.Time `json:"created_at"`
}

// Appointment statuses.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentNoShow    = "no_show"
)

// DonationAppointment books a donor for a donation of a given type.
type DonationAppointment struct {
	ID             string    `json:"id"`
	DonorID        string    `json:"donor_id"`
	DonationTypeID string    `json:"donation_type_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Location       string    `json:"location,omitempty"`
	Status         string    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type AppointmentUpdate struct {
	ScheduledAt *time.Time
	Location    *string
	Status      *string
	Notes       *string
}

// Donation is one completed collection. DonationID is the business number
// (DON-xxxxxxxx); AppointmentID links the booking when there was one.
type Donation struct {
	ID            string    `json:"id"`
	DonationID    string    `json:"donation_id"`
	DonorID       string    `json:"donor_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	TypeID        string    `json:"type_id"`
	VolumeML      int       `json:"volume_ml"`
	CollectedAt   time.Time `json:"collected_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// SampleType is reference data: serum, plasma, PBMC and so on.
type SampleType struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Sample statuses.
const (
	SampleAvailable = "available"
	SampleReserved  = "reserved"
	SampleShipped   = "shipped"
	SampleDepleted  = "depleted"
	SampleDiscarded = "discarded"
)

// Sample is one aliquot derived from a donation. SampleID (SM-xxxxxxxx)
// and Barcode (BC-xxxxxxxxxx) are both unique; StorageRef points into the
// external freezer inventory.
type Sample struct {
	ID           string     `json:"id"`
	SampleID     string     `json:"sample_id"`
	Barcode      string     `json:"barcode"`
	DonationID   string     `json:"donation_id"`
	SampleTypeID string     `json:"sample_type_id"`
	VolumeML     float64    `json:"volume_ml"`
	Status       string     `json:"status"`
	StorageRef   string     `json:"storage_ref,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type SampleUpdate struct {
	Status     *string
	StorageRef *string
	ExpiresAt  *time.Time
}

var (
	ErrNotFound     = errors.New("donors: not found")
	ErrInvalidInput = errors.New("donors: invalid input")
	ErrConflict     = errors.New("donors: conflict")
)
