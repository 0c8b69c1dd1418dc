package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/storefront-gateway/internal/session"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	cartCookie    = "cart_id"
	cartHeader    = "X-Cart-ID"
	sessionCookie = "sid"

	cartCookieMaxAge = 90 * 24 * time.Hour
)

type StatusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *StatusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *StatusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *StatusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *StatusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *StatusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// RequestLogger puts a request-scoped logger into the context and logs one
// line per completed request.
func RequestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			recorder := &StatusRecorder{ResponseWriter: w}

			next.ServeHTTP(recorder, r.WithContext(reqLog.WithContext(r.Context())))

			ev := reqLog.Info()
			if recorder.Status() >= http.StatusInternalServerError {
				ev = reqLog.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", recorder.Status()).
				Int("bytes", recorder.bytes).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

func LimitBody(maxBytes int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CartSession resolves the guest cart id from the cart_id cookie or the
// X-Cart-ID header and issues a new one when neither holds a valid id.
func CartSession(secure bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(cartHeader)
			if c, err := r.Cookie(cartCookie); err == nil && id == "" {
				id = c.Value
			}
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cartCookie,
					Value:    id,
					Path:     "/",
					MaxAge:   int(cartCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(cartHeader, id)
			next.ServeHTTP(w, r.WithContext(withCartID(r.Context(), id)))
		})
	}
}

// Session exposes the sid cookie, if any, to the handlers.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
			r = r.WithContext(withSessionID(r.Context(), c.Value))
		}
		next.ServeHTTP(w, r)
	})
}

func setSessionCookie(w http.ResponseWriter, sid string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type TokenEnsurer interface {
	Ensure(ctx context.Context, sid string) (string, error)
}

// RequireCustomer rejects guests. A session whose token could not be
// refreshed is answered with session_expired and a redirect to /login.
func RequireCustomer(tokens TokenEnsurer) func(next http.Handler) http.Handler {
	return customerAuth(tokens, true)
}

// OptionalCustomer attaches the customer token when there is one.
func OptionalCustomer(tokens TokenEnsurer) func(next http.Handler) http.Handler {
	return customerAuth(tokens, false)
}

func customerAuth(tokens TokenEnsurer, required bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := tokens.Ensure(r.Context(), sessionIDFrom(r.Context()))
			switch {
			case err == nil:
				r = r.WithContext(withCustomerToken(r.Context(), token))
			case errors.Is(err, session.ErrSessionExpired):
				respondSessionExpired(w)
				return
			case errors.Is(err, session.ErrNotAuthenticated):
				if required {
					respondError(w, http.StatusUnauthorized, "unauthenticated", "login required")
					return
				}
			default:
				zerolog.Ctx(r.Context()).Error().Err(err).Msg("session lookup failed")
				respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin admits only sessions holding a staff token.
func RequireAdmin(store session.Store) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := sessionIDFrom(r.Context())
			if sid == "" {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "staff login required")
				return
			}
			sess, err := store.Get(r.Context(), sid)
			if errors.Is(err, session.ErrSessionNotFound) || (err == nil && !sess.IsAdmin()) {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "staff login required")
				return
			}
			if err != nil {
				zerolog.Ctx(r.Context()).Error().Err(err).Msg("session lookup failed")
				respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}

			actor := "staff"
			if sess.AdminUser != nil && sess.AdminUser.Username != "" {
				actor = sess.AdminUser.Username
			}
			next.ServeHTTP(w, r.WithContext(withStaff(r.Context(), staff{Token: sess.AdminToken, Actor: actor})))
		})
	}
}
