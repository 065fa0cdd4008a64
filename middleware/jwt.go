package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"hash"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// JWTAlgorithm is one of the HMAC signing algorithms spec.md §4.11
// requires: "verify HMAC-SHA256/384/512 signature with in-tree
// implementations". RSA/EC algorithms are out of scope, mirroring
// original_source/src/middleware/builtin/jwt.rs's own HMAC-only support.
type JWTAlgorithm string

const (
	JWTAlgHS256 JWTAlgorithm = "HS256"
	JWTAlgHS384 JWTAlgorithm = "HS384"
	JWTAlgHS512 JWTAlgorithm = "HS512"
)

// JWTConfig configures one jwt() middleware instance.
type JWTConfig struct {
	Name      string
	Secret    []byte
	Algorithm JWTAlgorithm
	Issuer    string // empty disables the iss check
	Audience  string // empty disables the aud check

	HeaderName   string // default: Authorization
	HeaderPrefix string // default: "Bearer "
	QueryParam   string // empty disables query-param extraction
	CookieName   string // empty disables cookie extraction

	StripAuthorizationHeader bool
	ForwardClaims            map[string]string // claim name -> header name
}

type jwtMiddleware struct {
	name   string
	cfg    JWTConfig
	hashFn func() hash.Hash
}

func NewJWT(cfg JWTConfig) Middleware {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Authorization"
	}
	if cfg.HeaderPrefix == "" {
		cfg.HeaderPrefix = "Bearer "
	}

	m := &jwtMiddleware{name: cfg.Name, cfg: cfg}
	switch cfg.Algorithm {
	case JWTAlgHS384:
		m.hashFn = sha512.New384
	case JWTAlgHS512:
		m.hashFn = sha512.New
	default:
		m.hashFn = sha256.New
	}
	return m
}

func (m *jwtMiddleware) Name() string { return m.name }

func (m *jwtMiddleware) Handle(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool) {
	token, ok := m.extractToken(r)
	if !ok {
		return m.reject(w, r)
	}

	claims, ok := m.verify(token)
	if !ok {
		return m.reject(w, r)
	}

	if m.cfg.StripAuthorizationHeader {
		r.Header.Del(m.cfg.HeaderName)
	}
	for claimName, headerName := range m.cfg.ForwardClaims {
		if v, ok := claims[claimName]; ok {
			r.Header.Set(headerName, claimValueString(v))
		}
	}

	return w, r, true
}

func (m *jwtMiddleware) reject(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	return w, r, false
}

func (m *jwtMiddleware) extractToken(r *http.Request) (string, bool) {
	if h := r.Header.Get(m.cfg.HeaderName); strings.HasPrefix(h, m.cfg.HeaderPrefix) {
		return h[len(m.cfg.HeaderPrefix):], true
	}

	if m.cfg.QueryParam != "" {
		if v := r.URL.Query().Get(m.cfg.QueryParam); v != "" {
			return v, true
		}
	}

	if m.cfg.CookieName != "" {
		if c, err := r.Cookie(m.cfg.CookieName); err == nil {
			return c.Value, true
		}
	}

	return "", false
}

type jwtHeader struct {
	Alg string `json:"alg"`
}

func (m *jwtMiddleware) verify(token string) (map[string]any, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, false
	}
	headerB64, payloadB64, sigB64 := parts[0], parts[1], parts[2]

	headerJSON, err := base64.RawURLEncoding.DecodeString(headerB64)
	if err != nil {
		return nil, false
	}
	var hdr jwtHeader
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return nil, false
	}
	if !strings.EqualFold(hdr.Alg, string(m.cfg.Algorithm)) {
		return nil, false
	}

	expectedSig := m.sign(headerB64 + "." + payloadB64)
	actualSig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil || !hmac.Equal(expectedSig, actualSig) {
		return nil, false
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, false
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return nil, false
	}

	if !m.validateClaims(claims) {
		return nil, false
	}
	return claims, true
}

func (m *jwtMiddleware) sign(message string) []byte {
	mac := hmac.New(m.hashFn, m.cfg.Secret)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

func (m *jwtMiddleware) validateClaims(claims map[string]any) bool {
	now := time.Now().Unix()

	if exp, ok := claims["exp"]; ok {
		if n, ok := claimNumber(exp); ok && int64(n) < now {
			return false
		}
	}
	if nbf, ok := claims["nbf"]; ok {
		if n, ok := claimNumber(nbf); ok && int64(n) > now {
			return false
		}
	}
	if m.cfg.Issuer != "" {
		iss, _ := claims["iss"].(string)
		if iss != m.cfg.Issuer {
			return false
		}
	}
	if m.cfg.Audience != "" && !audienceMatches(claims["aud"], m.cfg.Audience) {
		return false
	}

	return true
}

func claimNumber(v any) (float64, bool) {
	n, ok := v.(float64)
	return n, ok
}

func audienceMatches(aud any, expected string) bool {
	switch v := aud.(type) {
	case string:
		return v == expected
	case []any:
		for _, a := range v {
			if s, ok := a.(string); ok && s == expected {
				return true
			}
		}
	}
	return false
}

func claimValueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, claimValueString(e))
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}
