package acme

import (
	"context"
	"crypto/tls"
	"net/http"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/acme/autocert"
)

// AutocertConfig configures the default, ecosystem-backed ACME resolver.
type AutocertConfig struct {
	// Domains is the allow-list autocert.HostPolicy restricts issuance
	// to; requesting a certificate for any other SNI name fails closed.
	Domains []string

	// CacheDir is where autocert.DirCache persists account keys and
	// issued certificates between restarts.
	CacheDir string

	// Email is passed to the CA for expiry notifications.
	Email string

	// Staging, when set, points at Let's Encrypt's staging directory
	// instead of production — the same staging/production split
	// original_source/src/tls/acme/manager.rs's AcmeManagerBuilder
	// exposes via .staging()/.production().
	Staging bool
}

const (
	letsEncryptProductionDirectory = "https://acme-v02.api.letsencrypt.org/directory"
	letsEncryptStagingDirectory    = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

// AutocertResolver is the default Resolver, wrapping
// golang.org/x/crypto/acme/autocert.Manager — the ecosystem's ACME
// client, used here instead of hand-rolling ACME protocol logic (out of
// scope per the core's own non-goals, and autocert already implements
// the full directory/order/challenge/finalize flow).
//
// autocert.Manager negotiates HTTP-01 (and tls-alpn-01) challenges
// entirely inside GetCertificate/HTTPHandler using its own internal
// token bookkeeping; it has no public hook to mirror tokens into
// server.SharedState's pending-challenge table. PendingChallenges
// therefore always reports empty for this resolver — callers that need
// the shared table populated (e.g. to serve challenges from every
// entrypoint without mounting autocert's handler on each one) should use
// ManualResolver instead, backed by an external provisioner.
type AutocertResolver struct {
	manager *autocert.Manager
}

// NewAutocertResolver builds a resolver that issues and renews
// certificates on demand for any SNI name in cfg.Domains.
func NewAutocertResolver(cfg AutocertConfig) *AutocertResolver {
	client := &autocert.Client{}
	if cfg.Staging {
		client.DirectoryURL = letsEncryptStagingDirectory
	} else {
		client.DirectoryURL = letsEncryptProductionDirectory
	}

	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Domains...),
		Email:      cfg.Email,
		Client:     client,
	}
	if cfg.CacheDir != "" {
		m.Cache = autocert.DirCache(cfg.CacheDir)
	}

	log.WithFields(log.Fields{"domains": cfg.Domains, "staging": cfg.Staging}).
		Info("acme: autocert resolver configured")

	return &AutocertResolver{manager: m}
}

func (r *AutocertResolver) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.manager.GetCertificate(hello)
}

// PendingChallenges always returns empty; see the type doc comment.
func (r *AutocertResolver) PendingChallenges() map[string]string {
	return map[string]string{}
}

// HTTPHandler returns the handler that must be mounted on a plaintext
// port-80 entrypoint to complete HTTP-01 validation; requests that are
// not ACME challenges fall through to fallback.
func (r *AutocertResolver) HTTPHandler(fallback http.Handler) http.Handler {
	return r.manager.HTTPHandler(fallback)
}

// TLSConfig returns a *tls.Config wired to this resolver's
// GetCertificate and advertising the "acme-tls/1" ALPN protocol needed
// for tls-alpn-01 validation, for entrypoints that prefer not to expose
// a plaintext challenge port at all.
func (r *AutocertResolver) TLSConfig() *tls.Config {
	return r.manager.TLSConfig()
}

// Renew obtains the certificate for domain synchronously, used at
// startup so the first request for a newly configured domain does not
// wait on issuance. A valid certificate already held in memory or in the
// cache is returned as is; a new one is issued only when none is found.
func (r *AutocertResolver) Renew(ctx context.Context, domain string) error {
	hello := &tls.ClientHelloInfo{ServerName: domain}
	_, err := r.manager.GetCertificate(hello)
	return err
}
