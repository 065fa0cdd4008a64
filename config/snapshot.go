// Package config defines the in-tree shape the (out-of-scope) YAML loader
// must produce: a single Snapshot the core consumes on startup and on
// every reload. Parsing, file-watching and validation of the YAML source
// itself are not part of this package — config/config.go in the teacher
// owns that job with kingpin flags; this module's reload path is file
// rather than flag driven, so only the struct-tagged snapshot shape is
// carried over, mirroring gopkg.in/yaml.v2 struct-tag conventions used
// throughout the teacher (e.g. filters/auth/grantconfig.go).
package config

import (
	"time"

	"github.com/northbound/edgeproxy/router"
	"github.com/northbound/edgeproxy/service"
	"github.com/northbound/edgeproxy/tcp"
	"github.com/northbound/edgeproxy/udp"
)

// Snapshot is the complete, validated configuration the core hot-swaps on
// reload: entrypoints, routes, services and middlewares for every
// supported protocol, plus optional cluster and ACME settings. A loader
// producing one of these is expected to resolve every cross-reference
// (route->service, route->middleware, route->entrypoint) before handing
// it to the core; the core itself only re-validates at the narrower,
// protocol-specific layer (router.Compile, service.Build, ...).
type Snapshot struct {
	Entrypoints []EntrypointSpec `yaml:"entrypoints"`

	Routes        []router.RouteSpec `yaml:"routes"`
	Services      []service.Config   `yaml:"services"`
	Middlewares   []MiddlewareSpec   `yaml:"middlewares"`

	TCPRoutes   []tcp.RouteSpec     `yaml:"tcpRoutes"`
	TCPServices []tcp.ServiceConfig `yaml:"tcpServices"`

	UDPRoutes   []udp.RouteSpec     `yaml:"udpRoutes"`
	UDPServices []udp.ServiceConfig `yaml:"udpServices"`

	Cluster *ClusterSpec `yaml:"cluster,omitempty"`
	ACME    *ACMESpec    `yaml:"acme,omitempty"`
}

// EntrypointSpec is the config-shaped description of one listener: its
// bound address, which L4 protocol it speaks, and (for HTTP) how it
// terminates TLS.
type EntrypointSpec struct {
	Name     string   `yaml:"name"`
	Address  string   `yaml:"address"`
	Protocol Protocol `yaml:"protocol"`
	TLS      *TLSSpec `yaml:"tls,omitempty"`

	// SendProxyProtocol asks the TCP entrypoint to prefix each forwarded
	// connection with a PROXY protocol v1 header (tcp.NewProxy's
	// sendProxyProto argument); ignored for HTTP and UDP entrypoints.
	SendProxyProtocol bool `yaml:"sendProxyProtocol,omitempty"`

	// IdleTimeout bounds how long a UDP session may sit without traffic
	// before its ephemeral socket is reclaimed; ignored for HTTP and TCP.
	IdleTimeout time.Duration `yaml:"idleTimeout,omitempty"`

	// Retry, when set, wraps this HTTP entrypoint's outbound transport in
	// middleware.NewRetryTransport instead of registering a pipeline
	// middleware (retry is an http.RoundTripper decorator, not a
	// middleware.Middleware — see the middleware/ DESIGN.md entry).
	Retry *RetrySpec `yaml:"retry,omitempty"`
}

// Protocol names the L4 protocol one entrypoint speaks.
type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolTCP  Protocol = "tcp"
	ProtocolUDP  Protocol = "udp"
)

// TLSSpec describes one entrypoint's TLS termination: either a static
// certificate/key pair on disk, or a reference to the shared SNI
// certificate registry (ACME-backed or statically populated).
type TLSSpec struct {
	CertFile    string `yaml:"certFile,omitempty"`
	KeyFile     string `yaml:"keyFile,omitempty"`
	UseResolver bool   `yaml:"useResolver,omitempty"`
}

// MiddlewareSpec is the union-by-Type config-shaped form of a single
// middleware instance, mirroring service.Config's union-by-Kind pattern:
// only the field matching Type is populated and read when building the
// concrete middleware.Middleware.
type MiddlewareSpec struct {
	Name string `yaml:"name"`
	Type MiddlewareType `yaml:"type"`

	Headers        *HeaderSpec         `yaml:"headers,omitempty"`
	Path           *PathSpec           `yaml:"path,omitempty"`
	RedirectScheme *RedirectSchemeSpec `yaml:"redirectScheme,omitempty"`
	BasicAuth      *BasicAuthSpec      `yaml:"basicAuth,omitempty"`
	DigestAuth     *DigestAuthSpec     `yaml:"digestAuth,omitempty"`
	JWT            *JWTSpec            `yaml:"jwt,omitempty"`
	CORS           *CORSSpec           `yaml:"cors,omitempty"`
	RateLimit      *RateLimitSpec      `yaml:"rateLimit,omitempty"`
	Retry          *RetrySpec          `yaml:"retry,omitempty"`
	Compress       *CompressSpec       `yaml:"compress,omitempty"`
	IPFilter       *IPFilterSpec       `yaml:"ipFilter,omitempty"`
}

// MiddlewareType identifies which middleware kind a MiddlewareSpec
// describes.
type MiddlewareType string

const (
	HeadersType        MiddlewareType = "headers"
	PathType           MiddlewareType = "path"
	RedirectSchemeType MiddlewareType = "redirectScheme"
	BasicAuthType      MiddlewareType = "basicAuth"
	DigestAuthType     MiddlewareType = "digestAuth"
	JWTType            MiddlewareType = "jwt"
	CORSType           MiddlewareType = "cors"
	RateLimitType      MiddlewareType = "rateLimit"
	RetryType          MiddlewareType = "retry"
	CompressType       MiddlewareType = "compress"
	IPFilterType       MiddlewareType = "ipFilter"
)

// HeaderSpec mirrors middleware.HeaderConfig's request/response header
// rewrite rules.
type HeaderSpec struct {
	RequestSet     map[string]string `yaml:"requestSet,omitempty"`
	RequestRemove  []string          `yaml:"requestRemove,omitempty"`
	ResponseSet    map[string]string `yaml:"responseSet,omitempty"`
	ResponseRemove []string          `yaml:"responseRemove,omitempty"`
}

// PathSpec mirrors middleware.PathConfig's strip/prefix/rewrite modes.
type PathSpec struct {
	Mode        string `yaml:"mode"`
	Prefix      string `yaml:"prefix,omitempty"`
	Expr        string `yaml:"expr,omitempty"`
	Replacement string `yaml:"replacement,omitempty"`
}

// RedirectSchemeSpec mirrors middleware.RedirectSchemeConfig.
type RedirectSchemeSpec struct {
	FromScheme string `yaml:"fromScheme"`
	ToScheme   string `yaml:"toScheme"`
	Status     int    `yaml:"status,omitempty"`
}

// BasicAuthSpec mirrors middleware.BasicAuthConfig.
type BasicAuthSpec struct {
	HtpasswdFile string `yaml:"htpasswdFile"`
	Realm        string `yaml:"realm,omitempty"`
}

// DigestAuthSpec mirrors middleware.DigestAuthConfig.
type DigestAuthSpec struct {
	HtpasswdFile string `yaml:"htpasswdFile"`
	Realm        string `yaml:"realm,omitempty"`
}

// JWTSpec mirrors middleware.JWTConfig. Secret is kept as a string in the
// YAML form; the builder that turns a Snapshot into live
// middleware.Middleware values uses its bytes unchanged as the HMAC key
// (no base64 decoding).
type JWTSpec struct {
	Secret       string `yaml:"secret"`
	Algorithm    string `yaml:"algorithm"`
	Issuer       string `yaml:"issuer,omitempty"`
	Audience     string `yaml:"audience,omitempty"`
	HeaderName   string `yaml:"headerName,omitempty"`
	HeaderPrefix string `yaml:"headerPrefix,omitempty"`
	QueryParam   string `yaml:"queryParam,omitempty"`
	CookieName   string `yaml:"cookieName,omitempty"`
}

// CORSSpec mirrors middleware.CORSConfig.
type CORSSpec struct {
	AllowOrigins     []string `yaml:"allowOrigins,omitempty"`
	AllowMethods     []string `yaml:"allowMethods,omitempty"`
	AllowHeaders     []string `yaml:"allowHeaders,omitempty"`
	ExposeHeaders    []string `yaml:"exposeHeaders,omitempty"`
	AllowCredentials bool     `yaml:"allowCredentials,omitempty"`
	MaxAge           int      `yaml:"maxAge,omitempty"`
}

// RateLimitSpec mirrors middleware.RateLimitConfig.
type RateLimitSpec struct {
	AverageRPS  uint64 `yaml:"averageRps"`
	Burst       uint64 `yaml:"burst"`
	RejectStatus int    `yaml:"rejectStatus,omitempty"`
}

// RetrySpec mirrors middleware.RetryConfig.
type RetrySpec struct {
	MaxAttempts     int           `yaml:"maxAttempts"`
	InitialInterval time.Duration `yaml:"initialInterval,omitempty"`
	MaxInterval     time.Duration `yaml:"maxInterval,omitempty"`
	RetryStatuses   []int         `yaml:"retryStatuses,omitempty"`
}

// CompressSpec mirrors middleware.CompressConfig.
type CompressSpec struct {
	MIME  []string `yaml:"mime,omitempty"`
	Level int      `yaml:"level,omitempty"`
}

// IPFilterSpec mirrors middleware.IPFilterConfig.
type IPFilterSpec struct {
	Mode         string   `yaml:"mode"`
	SourceRanges []string `yaml:"sourceRanges,omitempty"`
	XFFDepth     int      `yaml:"xffDepth,omitempty"`
	RejectStatus int      `yaml:"rejectStatus,omitempty"`
}

// ClusterSpec configures the optional clustered mode (spec.md §4.4
// "Distributed coordination"): node identity/timing plus which concrete
// cluster.Store backend to dial.
type ClusterSpec struct {
	NodeID            string        `yaml:"nodeId,omitempty"`
	AdvertiseAddress  string        `yaml:"advertiseAddress,omitempty"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval,omitempty"`
	LeaderTTL         time.Duration `yaml:"leaderTtl,omitempty"`
	NodeTimeout       time.Duration `yaml:"nodeTimeout,omitempty"`

	Redis *RedisStoreSpec `yaml:"redis,omitempty"`
	Swarm *SwarmSpec      `yaml:"swarm,omitempty"`
}

// RedisStoreSpec configures cluster/redisstore.
type RedisStoreSpec struct {
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

// SwarmSpec configures cluster/swarm's memberlist-backed gossip
// membership.
type SwarmSpec struct {
	NodeName      string   `yaml:"nodeName,omitempty"`
	BindAddr      string   `yaml:"bindAddr"`
	BindPort      int      `yaml:"bindPort"`
	AdvertiseAddr string   `yaml:"advertiseAddr,omitempty"`
	AdvertisePort int      `yaml:"advertisePort,omitempty"`
	Seeds         []string `yaml:"seeds,omitempty"`
}

// ACMESpec selects and configures the acme.Resolver implementation an
// entrypoint's TLS config can reference via TLSSpec.UseResolver.
type ACMESpec struct {
	Mode     ACMEMode `yaml:"mode"`
	Domains  []string `yaml:"domains,omitempty"`
	CacheDir string   `yaml:"cacheDir,omitempty"`
	Email    string   `yaml:"email,omitempty"`
	Staging  bool     `yaml:"staging,omitempty"`
}

// ACMEMode selects between the two acme.Resolver implementations.
type ACMEMode string

const (
	ACMEModeAutocert ACMEMode = "autocert"
	ACMEModeManual   ACMEMode = "manual"
)
