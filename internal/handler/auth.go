package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	appI18n "github.com/semillerodigital/classroomplus/internal/i18n"
	"github.com/semillerodigital/classroomplus/internal/model"
	"github.com/semillerodigital/classroomplus/internal/store"
)

const sessionCookieName = "session"

// sessionToken returns the session token from the cookie or a bearer header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(auth)
	}
	return ""
}

// CurrentIdentity resolves the request's session to the caller and their
// Google tokens. It never contacts Classroom.
func (h *Handler) CurrentIdentity(r *http.Request) (*model.Identity, error) {
	return ResolveSession(h.store, sessionToken(r))
}

// ResolveSession looks up a session token. It fails with ErrUnauthenticated
// for missing, unknown or expired sessions and with ErrMissingProviderToken
// when the session holds no Google access token.
func ResolveSession(s *store.Store, token string) (*model.Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	sess, err := s.GetAuthSession(token)
	if err != nil {
		return nil, fmt.Errorf("look up session: %w", err)
	}
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	if sess.ProviderToken == "" {
		return nil, ErrMissingProviderToken
	}
	return &model.Identity{
		UserID:       sess.UserID,
		Email:        sess.Email,
		Name:         sess.DisplayName,
		AccessToken:  sess.ProviderToken,
		RefreshToken: sess.ProviderRefreshToken,
	}, nil
}

// requireAuth rejects requests without a usable session and stores the
// identity in the request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.CurrentIdentity(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithIdentity(r.Context(), id)))
	})
}

type meResponse struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Name   string     `json:"name"`
	Role   model.Role `json:"role,omitempty"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	role, err := h.store.GetRolePreference(id.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, meResponse{UserID: id.UserID, Email: id.Email, Name: id.Name, Role: role})
}

func (h *Handler) handleSetRole(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil {
		h.writeError(w, r, badRequest("ErrInvalidRole", nil))
		return
	}
	role, ok := model.ParseRole(body.Role)
	if !ok {
		h.writeError(w, r, badRequest("ErrInvalidRole", nil))
		return
	}
	if err := h.store.SetRolePreference(id.UserID, role); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, meResponse{UserID: id.UserID, Email: id.Email, Name: id.Name, Role: role})
}

// handleLogout ends the session and forgets everything held for the user.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	if err := h.store.DeleteAuthSession(sessionToken(r)); err != nil {
		slog.Error("failed to delete auth session", "user_id", id.UserID, "error", err)
	}
	h.assignments.InvalidatePrefix(userKeyPrefix(id.UserID))
	if err := h.store.DeleteRolePreference(id.UserID); err != nil {
		slog.Error("failed to delete role preference", "user_id", id.UserID, "error", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, model.Envelope{Success: true, Message: appI18n.T(r.Context(), "LoggedOut")})
}

func userKeyPrefix(userID string) string {
	return "user:" + userID + ":"
}
