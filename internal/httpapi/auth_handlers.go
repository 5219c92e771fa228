package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"casedesk.org/internal/auth"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleRegister creates an account and signs it in.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.deps.Sessions.Register(r.Context(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	if a.deps.Workspace != nil {
		a.deps.Workspace.RememberUser(u)
	}
	sess, err := a.deps.Sessions.PersistSession(r.Context(), u)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := a.deps.Sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.log.Info("login failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())
	if err := a.deps.Sessions.ClearSession(r.Context(), token); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())
	sess, err := a.deps.Sessions.CurrentSession(r.Context(), token)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        sess.User,
		"expiresAt":   sess.ExpiresAt,
		"permissions": permissionsOf(sess.User),
	})
}

type permissionSet struct {
	CanCreate     bool `json:"canCreate"`
	CanEdit       bool `json:"canEdit"`
	CanDelete     bool `json:"canDelete"`
	CanViewAll    bool `json:"canViewAll"`
	CanReschedule bool `json:"canReschedule"`
}

func permissionsOf(u auth.User) permissionSet {
	p := auth.For(&u)
	return permissionSet{
		CanCreate:     p.CanCreate(),
		CanEdit:       p.CanEdit(),
		CanDelete:     p.CanDelete(),
		CanViewAll:    p.CanViewAll(),
		CanReschedule: p.CanReschedule(),
	}
}
