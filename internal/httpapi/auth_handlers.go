package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"biovault.org/internal/audit"
	"biovault.org/internal/auth"
	"biovault.org/internal/authz"
)

type registerRequest struct {
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Phone        string   `json:"phone"`
	Organization string   `json:"organization"`
	Roles        []string `json:"roles"`
}

// register creates an account. Self-registration grants only the
// non-escalated roles; staff and superuser can be granted solely by an
// already escalated caller.
func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decode(w, r, &req) {
		return
	}
	caller := a.actor(r)
	roles := make([]auth.Role, 0, len(req.Roles))
	for _, raw := range req.Roles {
		role, ok := auth.ParseRole(raw)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "invalid_input", "unknown role "+raw)
			return
		}
		if (role == auth.RoleStaff || role == auth.RoleSuperuser) && !caller.Escalated() {
			a.respondError(w, r, &authz.PermissionError{Entity: authz.EntityActor, Op: authz.OpCreate})
			return
		}
		roles = append(roles, role)
	}
	actor, err := a.accounts.Register(r.Context(), auth.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Organization: req.Organization,
		Roles:        roles,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.registered", map[string]any{
		"account_id": actor.ID,
		"email":      actor.Email,
		"roles":      actor.Roles.Strings(),
	})
	writeJSON(w, http.StatusCreated, actor)
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !a.decode(w, r, &req) {
		return
	}
	actor, err := a.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	token, err := auth.GenerateToken(actor.ID, actor.Roles, a.tokenTTL)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.token_issued", map[string]any{"account_id": actor.ID})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "bearer",
		"expires_in": int(a.tokenTTL.Seconds()),
	})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	actor := a.actor(r)
	if actor == nil {
		a.respondError(w, r, authz.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, actor)
}

type actorUpdateRequest struct {
	Email        *string   `json:"email"`
	FirstName    *string   `json:"first_name"`
	LastName     *string   `json:"last_name"`
	Password     *string   `json:"password"`
	Phone        *string   `json:"phone"`
	Organization *string   `json:"organization"`
	Status       *string   `json:"status"`
	Roles        *[]string `json:"roles"`
}

func (req actorUpdateRequest) toUpdate() (auth.ActorUpdate, bool) {
	upd := auth.ActorUpdate{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Password:     req.Password,
		Phone:        req.Phone,
		Organization: req.Organization,
		Status:       req.Status,
	}
	if req.Roles != nil {
		roles := make([]auth.Role, 0, len(*req.Roles))
		for _, raw := range *req.Roles {
			role, ok := auth.ParseRole(raw)
			if !ok {
				return upd, false
			}
			roles = append(roles, role)
		}
		set := auth.NewRoleSet(roles...)
		upd.Roles = &set
	}
	return upd, true
}

func (a *API) updateMe(w http.ResponseWriter, r *http.Request) {
	actor := a.actor(r)
	if actor == nil {
		a.respondError(w, r, authz.ErrUnauthenticated)
		return
	}
	var req actorUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	// Role and status changes on one's own account stay back office.
	if (req.Roles != nil || req.Status != nil) && !actor.Escalated() {
		a.respondError(w, r, &authz.PermissionError{Entity: authz.EntityActor, Op: authz.OpUpdate})
		return
	}
	upd, ok := req.toUpdate()
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "unknown role")
		return
	}
	updated, err := a.accounts.Update(r.Context(), actor.ID, upd)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) listActors(w http.ResponseWriter, r *http.Request) {
	scope, err := authz.ScopeFor(a.actor(r), authz.EntityActor)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if !scope.All {
		a.respondError(w, r, &authz.PermissionError{Entity: authz.EntityActor, Op: authz.OpList})
		return
	}
	actors, err := a.accounts.List(r.Context())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actors)
}

func (a *API) getActor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := authz.Instance(a.actor(r), authz.EntityActor, authz.OpGet, authz.Facts{OwnerID: id}); err != nil {
		a.respondError(w, r, err)
		return
	}
	actor, err := a.accounts.Actor(r.Context(), id)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actor)
}

func (a *API) updateActor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	caller := a.actor(r)
	if err := authz.Instance(caller, authz.EntityActor, authz.OpUpdate, authz.Facts{OwnerID: id}); err != nil {
		a.respondError(w, r, err)
		return
	}
	var req actorUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	if (req.Roles != nil || req.Status != nil) && !caller.Escalated() {
		a.respondError(w, r, &authz.PermissionError{Entity: authz.EntityActor, Op: authz.OpUpdate})
		return
	}
	upd, ok := req.toUpdate()
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "unknown role")
		return
	}
	updated, err := a.accounts.Update(r.Context(), id, upd)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if req.Roles != nil || req.Status != nil {
		_ = audit.LogEvent(r.Context(), "auth.account_changed", map[string]any{
			"account_id": id,
			"roles":      updated.Roles.Strings(),
			"status":     updated.Status,
		})
	}
	writeJSON(w, http.StatusOK, updated)
}
