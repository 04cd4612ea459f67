package httpapi

import (
	"net/http"
	"strings"

	"paygate/internal/audit"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := a.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "user.registered", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})

	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireScope(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, principal.User)
	case http.MethodDelete:
		if err := a.auth.DeleteAccount(r.Context(), principal.User); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{
			"user_id": principal.User.ID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}
