package acme

import (
	"crypto/tls"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCertSource struct {
	cert *tls.Certificate
	err  error
}

func (f *fakeCertSource) GetCertFromHello(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return f.cert, f.err
}

type fakeChallengeStore struct {
	keyAuth string
	ok      bool
}

func (f *fakeChallengeStore) LookupChallenge(string) (string, bool) {
	return f.keyAuth, f.ok
}

func TestManualResolverDelegatesCertificateLookup(t *testing.T) {
	cert := &tls.Certificate{}
	r := NewManualResolver(&fakeCertSource{cert: cert}, &fakeChallengeStore{})

	got, err := r.GetCertificate(&tls.ClientHelloInfo{ServerName: "example.com"})
	require.NoError(t, err)
	require.Same(t, cert, got)
}

func TestManualResolverPropagatesCertSourceError(t *testing.T) {
	wantErr := errors.New("no certificate")
	r := NewManualResolver(&fakeCertSource{err: wantErr}, &fakeChallengeStore{})

	_, err := r.GetCertificate(&tls.ClientHelloInfo{})
	require.ErrorIs(t, err, wantErr)
}

func TestManualResolverLookupChallenge(t *testing.T) {
	r := NewManualResolver(&fakeCertSource{}, &fakeChallengeStore{keyAuth: "token.thumbprint", ok: true})

	keyAuth, ok := r.LookupChallenge("abc")
	require.True(t, ok)
	require.Equal(t, "token.thumbprint", keyAuth)
}

func TestManualResolverPendingChallengesAlwaysEmpty(t *testing.T) {
	r := NewManualResolver(&fakeCertSource{}, &fakeChallengeStore{})
	require.Empty(t, r.PendingChallenges())
}
