package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/eddb-ingest/internal/config"
	"github.com/JonMunkholm/eddb-ingest/internal/core"
)

func testUsers(t *testing.T) *Users {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewUsers([]config.AuthUser{
		{Name: "admin", Hash: string(hash), Clearance: 0},
		{Name: "pilot", Hash: string(hash), Clearance: 7},
	})
}

func TestUsers_Authenticate(t *testing.T) {
	users := testUsers(t)
	assert.Equal(t, 2, users.Len())

	p, ok := users.Authenticate("pilot", "hunter2")
	require.True(t, ok)
	assert.Equal(t, core.Principal{Name: "pilot", Clearance: 7}, p)

	_, ok = users.Authenticate("pilot", "wrong")
	assert.False(t, ok)

	_, ok = users.Authenticate("ghost", "hunter2")
	assert.False(t, ok)
}

func TestBasicAuth(t *testing.T) {
	var got core.Principal
	var called bool
	h := BasicAuth(testUsers(t), "eddb")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		got, _ = core.PrincipalFromContext(r.Context())
	}))

	tests := []struct {
		name       string
		user, pass string
		wantStatus int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong password", "admin", "nope", http.StatusUnauthorized},
		{"unknown user", "ghost", "hunter2", http.StatusUnauthorized},
		{"valid", "admin", "hunter2", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			req := httptest.NewRequest(http.MethodGet, "/body", nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.False(t, called)
				assert.Equal(t, `Basic realm="eddb", charset="UTF-8"`, rec.Header().Get("WWW-Authenticate"))
				return
			}
			assert.True(t, called)
			assert.Equal(t, "admin", got.Name)
		})
	}
}

func TestLogger_SeesPrincipal(t *testing.T) {
	h := Logger(BasicAuth(testUsers(t), "eddb")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.SetBasicAuth("pilot", "hunter2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "untrusted peer keeps address",
			trusted: []string{"10.0.0.0/8"},
			remote:  "203.0.113.5:4000",
			headers: map[string]string{"X-Real-IP": "1.2.3.4"},
			want:    "203.0.113.5:4000",
		},
		{
			name:    "trusted peer uses X-Real-IP",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.1.2.3:4000",
			headers: map[string]string{"X-Real-IP": "1.2.3.4"},
			want:    "1.2.3.4",
		},
		{
			name:    "trusted bare IP uses first forwarded hop",
			trusted: []string{"127.0.0.1"},
			remote:  "127.0.0.1:4000",
			headers: map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"},
			want:    "5.6.7.8",
		},
		{
			name:    "invalid header ignored",
			trusted: []string{"127.0.0.1/32"},
			remote:  "127.0.0.1:4000",
			headers: map[string]string{"X-Real-IP": "not-an-ip"},
			want:    "127.0.0.1:4000",
		},
		{
			name:    "invalid CIDR skipped",
			trusted: []string{"bogus"},
			remote:  "127.0.0.1:4000",
			headers: map[string]string{"X-Real-IP": "1.2.3.4"},
			want:    "127.0.0.1:4000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
		})
	}
}
