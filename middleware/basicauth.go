package middleware

import (
	"net/http"

	auth "github.com/abbot/go-http-auth"
)

const (
	forceBasicAuthHeader = "WWW-Authenticate"
	defaultRealm         = "Basic Realm"
)

// BasicAuthConfig points at an htpasswd file, matching
// filters/auth/basic.go's configuration shape.
type BasicAuthConfig struct {
	Name        string
	HtpasswdFile string
	Realm       string
}

type basicAuthMiddleware struct {
	name            string
	authenticator   *auth.BasicAuth
	realmDefinition string
}

func NewBasicAuth(cfg BasicAuthConfig) Middleware {
	realm := cfg.Realm
	if realm == "" {
		realm = defaultRealm
	}

	htpasswd := auth.HtpasswdFileProvider(cfg.HtpasswdFile)
	return &basicAuthMiddleware{
		name:            cfg.Name,
		authenticator:   auth.NewBasicAuthenticator(realm, htpasswd),
		realmDefinition: `Basic realm="` + realm + `"`,
	}
}

func (m *basicAuthMiddleware) Name() string { return m.name }

func (m *basicAuthMiddleware) Handle(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool) {
	if username := m.authenticator.CheckAuth(r); username != "" {
		return w, r, true
	}

	w.Header().Set(forceBasicAuthHeader, m.realmDefinition)
	w.WriteHeader(http.StatusUnauthorized)
	return w, r, false
}
