package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/eddb-ingest/internal/config"
	"github.com/JonMunkholm/eddb-ingest/internal/core"
)

// dummyHash is compared against for unknown users so that a missing user and
// a wrong password take the same time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

type user struct {
	hash      []byte
	clearance int
}

// Users is the basic-auth user table.
type Users struct {
	byName map[string]user
}

// NewUsers builds the table from parsed AUTH_USERS entries.
func NewUsers(entries []config.AuthUser) *Users {
	u := &Users{byName: make(map[string]user, len(entries))}
	for _, e := range entries {
		u.byName[e.Name] = user{hash: []byte(e.Hash), clearance: e.Clearance}
	}
	return u
}

// Len returns the number of users.
func (u *Users) Len() int {
	return len(u.byName)
}

// Authenticate checks name and password and returns the principal.
func (u *Users) Authenticate(name, password string) (core.Principal, bool) {
	entry, ok := u.byName[name]
	if !ok {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return core.Principal{}, false
	}
	if err := bcrypt.CompareHashAndPassword(entry.hash, []byte(password)); err != nil {
		return core.Principal{}, false
	}
	return core.Principal{Name: name, Clearance: entry.clearance}, true
}

// BasicAuth returns middleware that authenticates HTTP Basic credentials
// against users and stores the principal in the request context. Clearance
// is not checked here; the access gate does that.
func BasicAuth(users *Users, realm string) func(http.Handler) http.Handler {
	challenge := "Basic realm=" + strconv.Quote(realm) + `, charset="UTF-8"`

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w, challenge)
				return
			}

			p, ok := users.Authenticate(name, password)
			if !ok {
				slog.Warn("auth: invalid credentials",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"user", name,
				)
				unauthorized(w, challenge)
				return
			}

			if h, ok := r.Context().Value(holderKey{}).(*principalHolder); ok {
				h.p, h.set = p, true
			}
			ctx := core.ContextWithPrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, challenge string) {
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized","code":"AUTH_REQUIRED"}` + "\n"))
}

type holderKey struct{}

func withPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}
