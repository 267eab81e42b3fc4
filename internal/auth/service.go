package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store describes persistence operations required by the account subsystem.
type Store interface {
	CreateActor(ctx context.Context, actor *Actor) error
	FindActor(ctx context.Context, id string) (*Actor, error)
	FindActorByEmail(ctx context.Context, email string) (*Actor, error)
	ListActors(ctx context.Context) ([]*Actor, error)
	UpdateActor(ctx context.Context, id string, upd ActorUpdate) (*Actor, error)
}

// Service provides account operations: registration, credential checks,
// profile updates. Authorization of who may call what is the caller's
// responsibility (see internal/authz).
type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewService constructs the account service.
func NewService(store Store, newID func() string) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if newID == nil {
		return nil, fmt.Errorf("%w: id generator is required", ErrInvalidInput)
	}
	return &Service{store: store, now: time.Now, newID: newID}, nil
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// RegisterInput carries the fields needed to create an account.
type RegisterInput struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	Phone        string
	Organization string
	Roles        []Role
}

// Register creates an account with hashed credentials.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Actor, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: field email: valid address is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Password) == "" {
		return nil, fmt.Errorf("%w: field password: required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return nil, fmt.Errorf("%w: field first_name/last_name: required", ErrInvalidInput)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	actor := &Actor{
		ID:           s.newID(),
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		Roles:        NewRoleSet(in.Roles...),
		Phone:        strings.TrimSpace(in.Phone),
		Organization: strings.TrimSpace(in.Organization),
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateActor(ctx, actor); err != nil {
		return nil, err
	}
	return actor, nil
}

// Authenticate verifies email/password credentials and returns the actor.
// Every failure mode maps to ErrUnauthorized to avoid oracle behavior.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Actor, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	actor, err := s.store.FindActorByEmail(ctx, email)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if actor.Status != StatusActive {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(actor.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	return actor, nil
}

// Actor loads an account by id.
func (s *Service) Actor(ctx context.Context, id string) (*Actor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: field id: required", ErrInvalidInput)
	}
	return s.store.FindActor(ctx, id)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]*Actor, error) {
	return s.store.ListActors(ctx)
}

// Update applies optional field changes: nil leaves a field unchanged.
func (s *Service) Update(ctx context.Context, id string, upd ActorUpdate) (*Actor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: field id: required", ErrInvalidInput)
	}
	if upd.Email != nil {
		trimmed := strings.TrimSpace(strings.ToLower(*upd.Email))
		if trimmed == "" || !strings.Contains(trimmed, "@") {
			return nil, fmt.Errorf("%w: field email: valid address is required", ErrInvalidInput)
		}
		upd.Email = &trimmed
	}
	if upd.Password != nil {
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: field password: %v", ErrInvalidInput, err)
		}
		upd.Password = &hash
	}
	if upd.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*upd.Status))
		if status != StatusActive && status != StatusDisabled {
			return nil, fmt.Errorf("%w: field status: unsupported value %q", ErrInvalidInput, *upd.Status)
		}
		upd.Status = &status
	}
	return s.store.UpdateActor(ctx, id, upd)
}
