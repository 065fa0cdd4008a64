package acme

import "crypto/tls"

// ManualResolver is the literal "resolver plus pending-challenge map"
// collaborator spec.md §1 describes: it does no ACME negotiation itself,
// deferring entirely to whatever out-of-scope process (a sidecar, an
// admin-triggered renewal job, a cluster peer) populates certs and
// LookupChallenge, matching original_source/src/tls/acme/challenge.rs's
// try_handle_challenge, which likewise only reads a shared pending-token
// map someone else fills in.
type ManualResolver struct {
	certs      CertSource
	challenges ChallengeStore
}

// NewManualResolver builds a resolver backed by an existing
// certregistry.CertRegistry (for certs) and server.SharedState (for
// pending HTTP-01 tokens); both are passed as narrow interfaces so this
// package does not need to import either.
func NewManualResolver(certs CertSource, challenges ChallengeStore) *ManualResolver {
	return &ManualResolver{certs: certs, challenges: challenges}
}

func (r *ManualResolver) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.certs.GetCertFromHello(hello)
}

// PendingChallenges always reports empty: ChallengeStore only supports
// lookup-by-token (matching the per-request path lookup
// try_handle_challenge performs), not enumeration.
func (r *ManualResolver) PendingChallenges() map[string]string {
	return map[string]string{}
}

// LookupChallenge answers a single HTTP-01 request path's token lookup,
// for an entrypoint's /.well-known/acme-challenge/ handler to call
// directly rather than going through PendingChallenges.
func (r *ManualResolver) LookupChallenge(token string) (string, bool) {
	return r.challenges.LookupChallenge(token)
}
