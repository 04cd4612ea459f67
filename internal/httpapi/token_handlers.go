package httpapi

import (
	"net/http"
	"strings"

	"paygate/internal/audit"
	"paygate/internal/auth"
)

type issueTokenRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	Permissions []string `json:"permissions"`
	AppID       string   `json:"app_id"`
	RedirectURL string   `json:"redirect_url"`
	Strict      *bool    `json:"strict"`
}

type editTokenRequest struct {
	AppID       string `json:"app_id"`
	RedirectURL string `json:"redirect_url"`
}

func (a *API) handleTokenCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.issueToken(w, r)
	case http.MethodGet:
		a.listTokens(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// issueToken creates a capability token, either from an existing token (the
// grantor, whose scopes bound the new ones) or from email/password
// credentials (no bound beyond the reserved-scope rule).
func (a *API) issueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	strict := true
	if req.Strict != nil {
		strict = *req.Strict
	}

	issue := auth.IssueRequest{
		Scopes:      auth.NewScopeSet(req.Permissions...),
		AppID:       strings.TrimSpace(req.AppID),
		RedirectURL: strings.TrimSpace(req.RedirectURL),
		Strict:      strict,
	}

	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		issue.User = principal.User
		issue.Grantor = principal.Token
	} else {
		user, err := a.auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		issue.User = user
	}

	token, err := a.auth.IssueToken(r.Context(), issue)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "token.issued", map[string]any{
		"token_id": token.ID,
		"user_id":  token.UserID,
		"scopes":   token.Permissions.List(),
		"app_id":   token.AppID,
	})

	writeJSON(w, http.StatusCreated, token)
}

func (a *API) listTokens(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireScope(w, r, auth.ScopeTokenManagement)
	if !ok {
		return
	}
	tokens, err := a.auth.ListTokens(r.Context(), principal.User, tokenFilterFromQuery(r))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if tokens == nil {
		tokens = []*auth.Token{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (a *API) handleTokenCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := a.requireScope(w, r)
	if !ok {
		return
	}
	if principal.Token == nil {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	writeJSON(w, http.StatusOK, principal.Token)
}

func (a *API) handleTokenCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := a.requireScope(w, r, auth.ScopeTokenManagement)
	if !ok {
		return
	}
	tokens, err := a.auth.ListTokens(r.Context(), principal.User, tokenFilterFromQuery(r))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(tokens)})
}

func (a *API) handleTokenResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/token/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	principal, ok := a.requireScope(w, r, auth.ScopeTokenManagement)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req editTokenRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		token, err := a.auth.EditToken(r.Context(), principal.User, id, req.AppID, req.RedirectURL)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, token)
	case http.MethodDelete:
		token, err := a.auth.RevokeToken(r.Context(), principal.User, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "token.revoked", map[string]any{
			"token_id": token.ID,
			"user_id":  token.UserID,
		})
		writeJSON(w, http.StatusOK, token)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func tokenFilterFromQuery(r *http.Request) auth.TokenFilter {
	f := auth.TokenFilter{
		AppID:       strings.TrimSpace(r.URL.Query().Get("app_id")),
		RedirectURL: strings.TrimSpace(r.URL.Query().Get("redirect_url")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("permissions")); raw != "" {
		for _, scope := range strings.Split(raw, ",") {
			if scope = strings.TrimSpace(scope); scope != "" {
				f.Permissions = append(f.Permissions, scope)
			}
		}
	}
	return f
}
