/*
This command provides an executable version of edgeproxy, the
multi-protocol edge reverse proxy: HTTP/1.1, HTTP/2, h2c, WebSocket, gRPC,
raw-TCP (TLS/SNI passthrough) and UDP entrypoints driven by one YAML
configuration file.

For the list of command line options, run:

	edgeproxy -help
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/northbound/edgeproxy/acme"
	"github.com/northbound/edgeproxy/certregistry"
	"github.com/northbound/edgeproxy/cluster"
	"github.com/northbound/edgeproxy/cluster/redisstore"
	"github.com/northbound/edgeproxy/cluster/swarm"
	"github.com/northbound/edgeproxy/config"
	"github.com/northbound/edgeproxy/middleware"
	"github.com/northbound/edgeproxy/proxy"
	"github.com/northbound/edgeproxy/server"
	"github.com/northbound/edgeproxy/tcp"
	"github.com/northbound/edgeproxy/udp"
)

var (
	version string
	commit  string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		if version == "" {
			version = info.Main.Version
		}
		if commit == "" {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					commit = setting.Value[:min(8, len(setting.Value))]
					break
				}
			}
		}
	}
}

func main() {
	configFile := flag.String("config", "", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "info", "logging level (debug, info, warn, error)")
	drainWindow := flag.Duration("drain-window", 0, "graceful shutdown drain window (0 keeps the server default)")
	printVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *printVersion {
		fmt.Printf("edgeproxy version %s (", version)
		if commit != "" {
			fmt.Printf("commit: %s, ", commit)
		}
		fmt.Printf("runtime: %s)\n", runtime.Version())
		return
	}

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", *logLevel, err)
	}
	log.SetLevel(level)

	if *configFile == "" {
		log.Fatal("missing required -config flag")
	}

	snap, err := loadSnapshot(*configFile)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	if err := run(snap, *drainWindow); err != nil {
		log.Fatal(err)
	}
}

func loadSnapshot(path string) (config.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.Snapshot{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var snap config.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return config.Snapshot{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return snap, nil
}

func run(snap config.Snapshot, drainWindow time.Duration) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	needsCertRegistry := false
	for _, ep := range snap.Entrypoints {
		if ep.TLS != nil && ep.TLS.UseResolver {
			needsCertRegistry = true
		}
	}

	var certRegistry *certregistry.CertRegistry
	if needsCertRegistry {
		certRegistry = certregistry.NewCertRegistry()
	}

	if snap.Cluster != nil {
		store, err := buildStore(ctx, *snap.Cluster)
		if err != nil {
			return fmt.Errorf("cluster: %w", err)
		}
		clusterManager, err := cluster.New(ctx, cluster.Config{
			NodeID:            snap.Cluster.NodeID,
			AdvertiseAddress:  snap.Cluster.AdvertiseAddress,
			HeartbeatInterval: snap.Cluster.HeartbeatInterval,
			LeaderTTL:         snap.Cluster.LeaderTTL,
			NodeTimeout:       snap.Cluster.NodeTimeout,
			Version:           version,
		}, store)
		if err != nil {
			return fmt.Errorf("cluster: starting manager: %w", err)
		}
		defer clusterManager.Shutdown(context.Background())

		if snap.Cluster.Swarm != nil {
			membership, err := buildSwarm(*snap.Cluster.Swarm)
			if err != nil {
				return fmt.Errorf("cluster: swarm membership: %w", err)
			}
			defer membership.Leave(0)
		}
	}

	rt, err := config.Build(snap, nil)
	if err != nil {
		return fmt.Errorf("building runtime: %w", err)
	}

	state := server.NewSharedState(rt.Router, rt.Services, certRegistry)
	srv := server.New(state)
	if drainWindow > 0 {
		srv.WithDrainWindow(drainWindow)
	}

	if snap.ACME != nil && certRegistry != nil {
		resolver, err := buildACMEResolver(*snap.ACME, certRegistry, state)
		if err != nil {
			return fmt.Errorf("acme: %w", err)
		}
		if err := primeACMECertificates(ctx, *snap.ACME, resolver, certRegistry); err != nil {
			log.Warnf("acme: initial certificate issuance incomplete: %v", err)
		}
	}

	for _, ep := range snap.Entrypoints {
		switch ep.Protocol {
		case config.ProtocolHTTP, "":
			listenerCfg := server.EntrypointConfig{Name: ep.Name, Address: ep.Address}
			if ep.TLS != nil {
				listenerCfg.TLS = &server.TLSConfig{
					CertFile:    ep.TLS.CertFile,
					KeyFile:     ep.TLS.KeyFile,
					UseResolver: ep.TLS.UseResolver,
				}
			}

			transport := httpTransport(ep)
			handler := proxy.NewHandler(ep.Name, ep.TLS != nil, rt.Router, rt.Services, rt.Middlewares, transport)

			listener, err := server.NewListener(listenerCfg, state, handler)
			if err != nil {
				return fmt.Errorf("entrypoint %q: %w", ep.Name, err)
			}
			srv.AddEntrypoint(ep.Name, listener)

		case config.ProtocolTCP:
			tcpProxy := tcp.NewProxy(rt.TCPRouter, rt.TCPServices, ep.SendProxyProtocol)
			srv.AddEntrypoint(ep.Name, server.NewTCPListener(ep.Name, ep.Address, state.Connections, tcpProxy))

		case config.ProtocolUDP:
			udpProxy := udp.NewProxy(rt.UDPRouter, rt.UDPServices)
			if ep.IdleTimeout > 0 {
				udpProxy = udpProxy.WithSessionTimeout(ep.IdleTimeout)
			}
			srv.AddEntrypoint(ep.Name, server.NewUDPListener(ep.Name, ep.Address, udpProxy))

		default:
			return fmt.Errorf("entrypoint %q: unknown protocol %q", ep.Name, ep.Protocol)
		}
	}

	return srv.Run(ctx)
}

// httpTransport builds the per-entrypoint outbound transport, wrapping the
// default one in middleware.RetryTransport when the entrypoint configures
// retry. Retry is an http.RoundTripper decorator, not a pipeline
// middleware.Middleware (see middleware/retry.go), so it is wired here
// rather than through rt.Middlewares.
func httpTransport(ep config.EntrypointSpec) http.RoundTripper {
	if ep.Retry == nil {
		return nil
	}
	base := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        1024,
		MaxIdleConnsPerHost: 256,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return middleware.NewRetryTransport(base, middleware.RetryConfig{
		MaxAttempts:     ep.Retry.MaxAttempts,
		InitialInterval: ep.Retry.InitialInterval,
		MaxInterval:     ep.Retry.MaxInterval,
		RetryStatuses:   ep.Retry.RetryStatuses,
	})
}

func buildStore(ctx context.Context, cfg config.ClusterSpec) (cluster.Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("no store backend configured (cluster.redis is required)")
	}
	return redisstore.New(ctx, redisstore.Config{
		Addr:      cfg.Redis.Addr,
		Username:  cfg.Redis.Username,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
}

func buildSwarm(cfg config.SwarmSpec) (*swarm.Membership, error) {
	return swarm.Join(swarm.Config{
		NodeName:      cfg.NodeName,
		BindAddr:      cfg.BindAddr,
		BindPort:      cfg.BindPort,
		AdvertiseAddr: cfg.AdvertiseAddr,
		AdvertisePort: cfg.AdvertisePort,
	}, cfg.Seeds)
}

func buildACMEResolver(cfg config.ACMESpec, certs *certregistry.CertRegistry, state *server.SharedState) (acme.Resolver, error) {
	switch cfg.Mode {
	case config.ACMEModeManual, "":
		return acme.NewManualResolver(certs, state), nil
	case config.ACMEModeAutocert:
		return acme.NewAutocertResolver(acme.AutocertConfig{
			Domains:  cfg.Domains,
			CacheDir: cfg.CacheDir,
			Email:    cfg.Email,
			Staging:  cfg.Staging,
		}), nil
	default:
		return nil, fmt.Errorf("unknown acme mode %q", cfg.Mode)
	}
}

// primeACMECertificates obtains a certificate up front (issuing one where
// none is cached) for every configured domain so the first request against a freshly started
// process doesn't race a cold ACME negotiation. Only AutocertResolver
// exposes a Renew hook; ManualResolver's certificates come from an
// external provisioner and are assumed already present in certs.
func primeACMECertificates(ctx context.Context, cfg config.ACMESpec, resolver acme.Resolver, certs *certregistry.CertRegistry) error {
	ac, ok := resolver.(*acme.AutocertResolver)
	if !ok {
		return nil
	}

	var firstErr error
	for _, domain := range cfg.Domains {
		if err := ac.Renew(ctx, domain); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("domain %q: %w", domain, err)
		}
	}
	return firstErr
}
