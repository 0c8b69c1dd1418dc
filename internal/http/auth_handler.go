package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront-gateway/internal/backend"
	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/fjod/storefront-gateway/internal/session"
	"github.com/rs/zerolog"
)

type AuthBackend interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.AuthTokens, error)
	GoogleLogin(ctx context.Context, in domain.GoogleLogin) (*domain.AuthTokens, error)
	Register(ctx context.Context, in domain.Registration) (*domain.AuthTokens, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*domain.User, error)
}

type SessionOptions struct {
	TTL          time.Duration
	SecureCookie bool
}

type AuthHandler struct {
	auth     AuthBackend
	sessions session.Store
	opts     SessionOptions
	timeout  time.Duration
}

func NewAuthHandler(auth AuthBackend, sessions session.Store, opts SessionOptions, timeout time.Duration) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
		opts:     opts,
		timeout:  timeout,
	}
}

type UserResponseDTO struct {
	User *domain.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var creds domain.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	creds.Username = strings.TrimSpace(creds.Username)
	creds.Email = strings.TrimSpace(creds.Email)
	if (creds.Username == "" && creds.Email == "") || creds.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_credentials", "username or email and password are required")
		return
	}

	tokens, err := h.auth.Login(ctx, creds)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	h.startSession(ctx, w, r, tokens, http.StatusOK)
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var in domain.GoogleLogin
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if in.AccessToken == "" && in.IDToken == "" && in.Code == "" {
		respondError(w, http.StatusBadRequest, "invalid_credentials", "a google access_token, id_token or code is required")
		return
	}

	tokens, err := h.auth.GoogleLogin(ctx, in)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	h.startSession(ctx, w, r, tokens, http.StatusOK)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var in domain.Registration
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if in.Password1 != in.Password2 {
		respondErrorDetails(w, http.StatusBadRequest, "validation_failed", "passwords do not match",
			map[string][]string{"password2": {"The two password fields didn't match."}})
		return
	}

	tokens, err := h.auth.Register(ctx, in)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	h.startSession(ctx, w, r, tokens, http.StatusCreated)
}

// Logout always ends the local session, even when the backend call fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	log := zerolog.Ctx(r.Context())

	sid := sessionIDFrom(r.Context())
	if sid == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sess, err := h.sessions.Get(ctx, sid)
	if err == nil && sess.Token != "" {
		if err := h.auth.Logout(ctx, sess.Token); err != nil {
			log.Warn().Err(err).Msg("backend logout failed")
		}
	}
	if err := h.sessions.ClearCustomer(ctx, sid); err != nil {
		handleBackendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, err := h.auth.CurrentUser(ctx, customerTokenFrom(r.Context()))
	if backend.IsUnauthorized(err) {
		if err := h.sessions.ClearCustomer(ctx, sessionIDFrom(r.Context())); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("clear rejected session failed")
		}
		respondSessionExpired(w)
		return
	}
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, UserResponseDTO{User: user})
}

func (h *AuthHandler) startSession(ctx context.Context, w http.ResponseWriter, r *http.Request, tokens *domain.AuthTokens, status int) {
	access := tokens.AccessValue()
	if access == "" {
		handleBackendError(w, r, errors.Join(backend.ErrUnavailable, errors.New("login answer carried no token")))
		return
	}

	sid, err := rotateSession(ctx, h.sessions, sessionIDFrom(r.Context()))
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	if err := h.sessions.SetCustomer(ctx, sid, access, tokens.RefreshValue()); err != nil {
		handleBackendError(w, r, err)
		return
	}
	setSessionCookie(w, sid, h.opts.TTL, h.opts.SecureCookie)

	user := tokens.User
	if user == nil {
		if u, err := h.auth.CurrentUser(ctx, access); err == nil {
			user = u
		} else {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("fetch user after login failed")
		}
	}
	respondJSON(w, status, UserResponseDTO{User: user})
}

// rotateSession issues a fresh sid on every login. Whatever the other role
// stored under the old sid moves along with it.
func rotateSession(ctx context.Context, sessions session.Store, oldSID string) (string, error) {
	sid := session.NewID()
	if oldSID == "" {
		return sid, nil
	}

	prev, err := sessions.Get(ctx, oldSID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return sid, nil
	}
	if err != nil {
		return "", err
	}
	if prev.IsCustomer() {
		if err := sessions.SetCustomer(ctx, sid, prev.Token, prev.Refresh); err != nil {
			return "", err
		}
	}
	if prev.IsAdmin() {
		if err := sessions.SetAdmin(ctx, sid, prev.AdminToken, prev.AdminUser); err != nil {
			return "", err
		}
	}
	if err := sessions.Delete(ctx, oldSID); err != nil {
		return "", err
	}
	return sid, nil
}
