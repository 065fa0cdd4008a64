// Package acme supplies the TLS certificate resolver the entrypoint
// listener fabric consults for SNI-driven certificate selection. The
// ACME protocol itself is out of scope: this package only defines the
// Resolver interface cmd/edgeproxy builds from config and a couple of
// concrete implementations — one wrapping the standard ecosystem ACME
// client, one deferring entirely to an external provisioner that pushes
// tokens and certificates in. Both are grounded on
// original_source/src/tls/acme/{manager,challenge}.rs's division of
// labor between "the thing that answers GetCertificate" and "the thing
// that serves /.well-known/acme-challenge/<token>".
package acme

import "crypto/tls"

// Resolver answers TLS SNI certificate lookups and exposes any HTTP-01
// challenge tokens currently awaiting validation, so an entrypoint
// listener can serve them at /.well-known/acme-challenge/<token> without
// needing to know which ACME implementation is behind the resolver.
type Resolver interface {
	// GetCertificate resolves a certificate for a ClientHello's SNI name,
	// triggering on-demand issuance if the concrete resolver supports it.
	GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error)

	// PendingChallenges returns token -> key-authorization for every
	// HTTP-01 challenge currently outstanding. A resolver whose ACME
	// client handles HTTP-01 entirely internally (never surfacing raw
	// tokens to the caller) may always return an empty map; see
	// AutocertResolver's doc comment for why that's the common case.
	PendingChallenges() map[string]string
}

// ChallengeStore is the read side of an externally-populated
// pending-challenge table, e.g. server.SharedState. ManualResolver uses
// it instead of managing challenge state itself.
type ChallengeStore interface {
	LookupChallenge(token string) (string, bool)
}

// CertSource resolves a certificate by SNI/ClientHello, the shape
// certregistry.CertRegistry already exposes.
type CertSource interface {
	GetCertFromHello(hello *tls.ClientHelloInfo) (*tls.Certificate, error)
}
