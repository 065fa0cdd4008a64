package certregistry

import (
	"crypto/tls"
	"errors"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	errCertNotFound = errors.New("certificate not found")
	defaultHost     = "ingress.local"
)

type CertRegistry struct {
	lookup map[string]*tls.Certificate
	mx     *sync.Mutex
}

func NewCertRegistry() *CertRegistry {
	cert := getFakeHostTLSCert(defaultHost)
	l := make(map[string]*tls.Certificate)
	
	l[defaultHost] = cert

	return &CertRegistry{
		lookup: l,
		mx:     &sync.Mutex{},
	}
}

func (r *CertRegistry) getCertByKey(key string) (*tls.Certificate, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	cert, ok := r.lookup[key]
	if !ok || cert == nil {
		log.Debugf("certificate not found in registry - %s", key)
		return nil, errCertNotFound
	}
	
	return cert, nil
}

func (r *CertRegistry) addCert(key string, cert *tls.Certificate) {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.lookup[key] = cert
}

// SyncCert stores cert under key and under every name in hosts, so a
// certificate resolved by its SNI-registry key is also reachable by each
// SAN/wildcard name it covers.
func (r *CertRegistry) SyncCert(key string, hosts []string, cert *tls.Certificate) {
	log.Debugf("syncing certificate to registry - %s", key)
	r.addCert(key, cert)
	for _, h := range hosts {
		r.addCert(h, cert)
	}
}

// GetCertFromHello resolves a certificate for the TLS ClientHello's SNI
// name: exact match, then a single-label wildcard match (`*.suffix`),
// then the default certificate.
func (r *CertRegistry) GetCertFromHello(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.GetCertByName(hello.ServerName)
}

// GetCertByName applies the exact → wildcard → default resolution order
// directly, for callers that don't have a *tls.ClientHelloInfo on hand.
func (r *CertRegistry) GetCertByName(name string) (*tls.Certificate, error) {
	if cert, err := r.getCertByKey(name); err == nil {
		return cert, nil
	}

	if wildcardKey, ok := wildcardSuffixKey(name); ok {
		if cert, err := r.getCertByKey(wildcardKey); err == nil {
			return cert, nil
		}
	}

	return r.getCertByKey(defaultHost)
}

// wildcardSuffixKey turns "sub.example.com" into "*.example.com" — the
// registry key a wildcard certificate for that suffix is stored under.
// Only a single label is stripped: "a.b.example.com" does not match a
// "*.example.com" entry.
func wildcardSuffixKey(name string) (string, bool) {
	idx := strings.IndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return "", false
	}
	return "*" + name[idx:], true
}
