package middleware

import (
	"net/http"

	auth "github.com/abbot/go-http-auth"
)

// DigestAuthConfig points at an htpasswd file in digest format (realm and
// HA1 hash per entry), matching go-http-auth's DigestAuth expectations.
type DigestAuthConfig struct {
	Name         string
	HtpasswdFile string
	Realm        string
}

type digestAuthMiddleware struct {
	name          string
	authenticator *auth.DigestAuth
}

func NewDigestAuth(cfg DigestAuthConfig) Middleware {
	realm := cfg.Realm
	if realm == "" {
		realm = defaultRealm
	}

	htdigest := auth.HtdigestFileProvider(cfg.HtpasswdFile)
	return &digestAuthMiddleware{
		name:          cfg.Name,
		authenticator: auth.NewDigestAuthenticator(realm, htdigest),
	}
}

func (m *digestAuthMiddleware) Name() string { return m.name }

func (m *digestAuthMiddleware) Handle(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool) {
	if username := m.authenticator.CheckAuth(r); username != "" {
		return w, r, true
	}

	m.authenticator.RequireAuth(w, r)
	return w, r, false
}
