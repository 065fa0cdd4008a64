// Package proxy implements the L7 forwarder: it matches an incoming
// request against the current router snapshot, resolves the matched
// route's service to a single backend server, and forwards the request
// over HTTP/1.1, HTTP/2, h2c or (for upgrade requests) a bridged
// WebSocket connection. gRPC requests are detected and get gRPC-flavored
// error responses instead of plain-text ones.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/northbound/edgeproxy/proxyerr"
	"github.com/northbound/edgeproxy/router"
	"github.com/northbound/edgeproxy/service"
)

// hopByHopHeaders lists headers that must never be forwarded as-is between
// a proxy and either side of the connection, per RFC 7230 §6.1, plus the
// extra entries the reference implementation strips.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"Upgrade",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
}

const (
	defaultRequestTimeout = 30 * time.Second
	grpcRequestTimeout    = 5 * time.Minute
)

// Pipeline runs the configured middleware chain for a matched route ahead
// of backend selection. It returns the (possibly wrapped) writer and
// request to use for the remainder of the request, so a middleware that
// needs to transform the backend response (compression, response header
// injection, CORS) can do so by wrapping w before handing it back; it
// returns proceed=false if it already wrote a complete response itself
// and the request must not be forwarded.
type Pipeline interface {
	Run(names []string, w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool)
}

// Handler forwards requests arriving on one entrypoint to the backend
// servers their matched route's service resolves to.
type Handler struct {
	entrypoint string
	isTLS      bool
	router     *router.Router
	services   *service.Registry
	pipeline   Pipeline
	client     *http.Client
}

// NewHandler builds a Handler for one entrypoint. transport, when nil,
// defaults to a Transport tuned the way the reference forwarder tunes its
// connection pool (long-lived keep-alives, generous per-host idle pool).
func NewHandler(entrypoint string, isTLS bool, rtr *router.Router, services *service.Registry, pipeline Pipeline, transport http.RoundTripper) *Handler {
	if transport == nil {
		transport = defaultTransport()
	}
	return &Handler{
		entrypoint: entrypoint,
		isTLS:      isTLS,
		router:     rtr,
		services:   services,
		pipeline:   pipeline,
		client:     &http.Client{Transport: transport},
	}
}

func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy:               nil,
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        1024,
		MaxIdleConnsPerHost: 256,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	isGRPC := isGRPCRequest(r) || isGRPCWebRequest(r)

	host := r.Host
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	in := router.MatchInput{
		Host:     host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Method:   r.Method,
		Header:   r.Header,
	}

	route := h.router.MatchRequest(h.entrypoint, in)
	if route == nil {
		log.Debugf("no route matched for %s %s", host, r.URL.Path)
		h.writeError(w, proxyerr.RouteMiss, isGRPC)
		return
	}

	if h.pipeline != nil && len(route.Middlewares) > 0 {
		var proceed bool
		w, r, proceed = h.pipeline.Run(route.Middlewares, w, r)
		if closer, ok := w.(io.Closer); ok {
			defer closer.Close()
		}
		if !proceed {
			return
		}
	}

	svc, ok := h.services.Get(route.Service)
	if !ok {
		log.Errorf("service %q not found for route %q", route.Service, route.Name)
		h.writeError(w, proxyerr.ServiceMissing, isGRPC)
		return
	}

	pick, resolveErr := h.resolveBackend(w, r, svc)
	if resolveErr != nil {
		h.writeError(w, resolveErr.Kind, isGRPC)
		return
	}
	defer pick.Release()

	if isWebSocketUpgrade(r) {
		log.Debugf("handling websocket upgrade to %s", pick.Address)
		if err := handleWebSocketUpgrade(w, r, pick.Address); err != nil {
			log.Errorf("websocket upgrade failed: %v", err)
			h.writeError(w, proxyerr.UpgradeFailed, isGRPC)
		}
		return
	}

	h.forward(w, r, route, svc, pick, isGRPC, start)
}

// resolveBackend walks weighted/failover/mirroring indirection down to a
// concrete backend server pick. Mirroring resolves to its main service;
// shadow copies are dispatched separately by forward.
func (h *Handler) resolveBackend(w http.ResponseWriter, r *http.Request, svc service.Service) (service.Pick, *proxyerr.Error) {
	seen := map[string]bool{}
	current := svc

	for i := 0; i < 8; i++ {
		if seen[current.Name()] {
			return service.Pick{}, proxyerr.New(proxyerr.ServiceMissing)
		}
		seen[current.Name()] = true

		switch s := current.(type) {
		case *service.LoadBalancedService:
			pick, ok := s.Select(w, r)
			if !ok {
				return service.Pick{}, proxyerr.New(proxyerr.NoHealthy)
			}
			return pick, nil
		case *service.WeightedService:
			name, ok := s.NextService()
			if !ok {
				return service.Pick{}, proxyerr.New(proxyerr.NoBalancer)
			}
			next, ok := h.services.Get(name)
			if !ok {
				return service.Pick{}, proxyerr.New(proxyerr.ServiceMissing)
			}
			current = next
		case *service.FailoverService:
			next, ok := h.services.Get(s.ActiveService())
			if !ok {
				return service.Pick{}, proxyerr.New(proxyerr.ServiceMissing)
			}
			current = next
		case *service.MirroringService:
			next, ok := h.services.Get(s.MainServiceName())
			if !ok {
				return service.Pick{}, proxyerr.New(proxyerr.ServiceMissing)
			}
			current = next
		default:
			return service.Pick{}, proxyerr.New(proxyerr.NoBalancer)
		}
	}

	return service.Pick{}, proxyerr.New(proxyerr.ServiceMissing)
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request, route *router.Route, svc service.Service, pick service.Pick, isGRPC bool, start time.Time) {
	backendOK := true
	lbSvc, hasBreaker := h.loadBalancedAncestor(svc)
	if hasBreaker {
		report, ok := lbSvc.Allow(pick.Address)
		if !ok {
			w.Header().Set("X-Circuit-Open", "true")
			h.writeError(w, proxyerr.CircuitOpen, isGRPC)
			return
		}
		defer func() { report(backendOK) }()
	}

	backendURL, err := buildBackendURL(pick.Address, r.URL)
	if err != nil {
		log.Errorf("failed to build backend url: %v", err)
		h.writeError(w, proxyerr.BackendTransport, isGRPC)
		return
	}

	timeout := defaultRequestTimeout
	if isGRPC {
		timeout = grpcRequestTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	outReq, err := buildProxiedRequest(ctx, r, backendURL, h.isTLS, isGRPC)
	if err != nil {
		log.Errorf("failed to build proxied request: %v", err)
		h.writeError(w, proxyerr.BackendTransport, isGRPC)
		return
	}

	resp, err := h.client.Do(outReq)
	elapsed := time.Since(start)
	if err != nil {
		backendOK = false
		if ctx.Err() == context.DeadlineExceeded {
			log.Warnf("request timeout after %v (limit %v): %s", elapsed, timeout, pick.Address)
			h.recordFailure(svc, pick, 0, elapsed)
			h.writeError(w, proxyerr.BackendTimeout, isGRPC)
			return
		}
		log.Errorf("backend request failed in %v: %s -> %v", elapsed, pick.Address, err)
		h.recordFailure(svc, pick, 0, elapsed)
		h.writeError(w, proxyerr.BackendTransport, isGRPC)
		return
	}
	defer resp.Body.Close()
	backendOK = resp.StatusCode < 500

	log.Debugf("backend response: %d in %v from %s", resp.StatusCode, elapsed, pick.Address)
	h.recordFailure(svc, pick, resp.StatusCode, elapsed)

	if lbm, ok := svc.(*service.MirroringService); ok {
		h.dispatchMirrors(r, lbm)
	}

	copyResponse(w, resp, isGRPC)
}

func (h *Handler) recordFailure(svc service.Service, pick service.Pick, statusCode int, elapsed time.Duration) {
	lb, ok := svc.(*service.LoadBalancedService)
	if !ok {
		return
	}
	lb.RecordResult(pick.Index, pick.Address, statusCode, elapsed)
}

func (h *Handler) loadBalancedAncestor(svc service.Service) (*service.LoadBalancedService, bool) {
	lb, ok := svc.(*service.LoadBalancedService)
	return lb, ok
}

// dispatchMirrors fires best-effort copies of r to every mirror selected
// for this request; failures are logged and otherwise ignored, matching
// spec.md's "internal recovery" rule for non-critical side paths.
func (h *Handler) dispatchMirrors(r *http.Request, m *service.MirroringService) {
	mirrors := m.MirrorsForRequest()
	if len(mirrors) == 0 {
		return
	}

	for _, name := range mirrors {
		mirrorSvc, ok := h.services.Get(name)
		if !ok {
			continue
		}
		go h.sendMirrorCopyRecovered(r, mirrorSvc)
	}
}

func (h *Handler) sendMirrorCopyRecovered(r *http.Request, svc service.Service) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("recovered panic dispatching mirror copy: %v", rec)
		}
	}()
	h.sendMirrorCopy(r, svc)
}

func (h *Handler) sendMirrorCopy(r *http.Request, svc service.Service) {
	lb, ok := svc.(*service.LoadBalancedService)
	if !ok {
		return
	}

	idx, srv := 0, ""
	pick, ok := lb.Select(discardResponseWriter{}, r)
	if !ok {
		return
	}
	idx, srv = pick.Index, pick.Address
	defer pick.Release()

	backendURL, err := buildBackendURL(srv, r.URL)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	defer cancel()

	outReq, err := buildProxiedRequest(ctx, r, backendURL, h.isTLS, false)
	if err != nil {
		return
	}

	resp, err := h.client.Do(outReq)
	if err != nil {
		log.Debugf("mirror request to %s failed: %v", srv, err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	_ = idx
}

func buildBackendURL(backendAddress string, originalURL *url.URL) (*url.URL, error) {
	base, err := url.Parse(backendAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid backend address %q: %w", backendAddress, err)
	}
	out := *base
	out.Path = originalURL.Path
	out.RawPath = originalURL.RawPath
	out.RawQuery = originalURL.RawQuery
	return &out, nil
}

func buildProxiedRequest(ctx context.Context, r *http.Request, backendURL *url.URL, isTLS, isGRPC bool) (*http.Request, error) {
	outReq, err := http.NewRequestWithContext(ctx, r.Method, backendURL.String(), r.Body)
	if err != nil {
		return nil, err
	}
	outReq.Header = r.Header.Clone()
	outReq.ContentLength = r.ContentLength
	outReq.Host = backendURL.Host

	stripHopByHop(outReq.Header, isGRPC)

	if isGRPC && outReq.Header.Get("Te") == "" {
		outReq.Header.Set("Te", "trailers")
	}

	clientIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		clientIP = host
	}
	if existing := outReq.Header.Get("X-Forwarded-For"); existing != "" {
		outReq.Header.Set("X-Forwarded-For", existing+", "+clientIP)
	} else {
		outReq.Header.Set("X-Forwarded-For", clientIP)
	}

	if r.Host != "" {
		outReq.Header.Set("X-Forwarded-Host", r.Host)
	}

	proto := "http"
	if isTLS {
		proto = "https"
	}
	outReq.Header.Set("X-Forwarded-Proto", proto)

	return outReq, nil
}

func stripHopByHop(header http.Header, isGRPC bool) {
	for _, h := range hopByHopHeaders {
		if isGRPC && h == "Te" {
			continue
		}
		header.Del(h)
	}
}

func copyResponse(w http.ResponseWriter, resp *http.Response, isGRPC bool) {
	dst := w.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	if !isGRPC {
		for _, h := range hopByHopHeaders {
			dst.Del(h)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func (h *Handler) writeError(w http.ResponseWriter, kind proxyerr.Kind, isGRPC bool) {
	if isGRPC {
		writeGRPCError(w, kind, kind.Message())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(kind.Status())
	io.WriteString(w, kind.Message())
}

// discardResponseWriter satisfies http.ResponseWriter for mirror dispatch,
// which never writes a response to the original client.
type discardResponseWriter struct{}

func (discardResponseWriter) Header() http.Header       { return http.Header{} }
func (discardResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (discardResponseWriter) WriteHeader(int)            {}
