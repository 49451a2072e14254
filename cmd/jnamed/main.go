// Command jnamed is the authoritative/caching DNS server binary (spec §6):
// it reads a jnamed.conf file, loads primary zones from disk and secondary
// zones via AXFR, restores a persisted cache snapshot if configured, and
// serves queries over UDP and TCP until signaled to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haukened/rr-dns/internal/dns/common/clock"
	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/config"
	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/gateways/axfr"
	"github.com/haukened/rr-dns/internal/dns/gateways/transport"
	"github.com/haukened/rr-dns/internal/dns/repos/dnscache"
	"github.com/haukened/rr-dns/internal/dns/repos/zone"
	"github.com/haukened/rr-dns/internal/dns/repos/zoneset"
	"github.com/haukened/rr-dns/internal/dns/server/cachestore"
	"github.com/haukened/rr-dns/internal/dns/server/jconf"
	"github.com/haukened/rr-dns/internal/dns/services/responder"
	"github.com/haukened/rr-dns/internal/dns/tsig"
)

const (
	version        = "0.1.0-dev"
	defaultZoneTTL = 300 * time.Second
)

func main() {
	confPath := "jnamed.conf"
	if len(os.Args) > 1 {
		confPath = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "logging configuration error: %v\n", err)
		os.Exit(1)
	}
	logger := log.GetLogger()

	f, err := os.Open(confPath)
	if err != nil {
		logger.Fatal(map[string]any{"path": confPath, "error": err.Error()}, "cannot open jnamed.conf")
	}
	jc, err := jconf.Parse(f)
	f.Close()
	if err != nil {
		logger.Fatal(map[string]any{"error": err.Error()}, "failed to parse jnamed.conf")
	}

	app, err := build(cfg, jc, logger)
	if err != nil {
		logger.Fatal(map[string]any{"error": err.Error()}, "failed to build server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info(map[string]any{"signal": sig.String()}, "shutdown signal received")
		cancel()
	}()

	logger.Info(map[string]any{"version": version}, "jnamed starting")
	if err := app.Run(ctx); err != nil {
		logger.Fatal(map[string]any{"error": err.Error()}, "server failed")
	}
	logger.Info(nil, "jnamed stopped gracefully")
}

// application holds every running component, for Run/shutdown.
type application struct {
	cfg        *config.AppConfig
	logger     log.Logger
	cache      *dnscache.Cache
	cacheStore *cachestore.Store
	transports []transport.ServerTransport
}

func build(cfg *config.AppConfig, jc *jconf.Config, logger log.Logger) (*application, error) {
	zones := zoneset.New()

	for _, p := range jc.Primaries {
		origin, err := domain.ParseName(p.Origin, nil)
		if err != nil {
			return nil, fmt.Errorf("primary zone %s: invalid origin: %w", p.Origin, err)
		}
		z, err := zone.LoadFile(p.File, origin, defaultZoneTTL)
		if err != nil {
			return nil, fmt.Errorf("primary zone %s: %w", p.Origin, err)
		}
		zones.Add(z)
		logger.Info(map[string]any{"origin": p.Origin, "file": p.File}, "loaded primary zone")
	}

	axfrClient := axfr.NewClient(axfr.Options{})
	for _, s := range jc.Secondaries {
		origin, err := domain.ParseName(s.Origin, nil)
		if err != nil {
			return nil, fmt.Errorf("secondary zone %s: invalid origin: %w", s.Origin, err)
		}
		z, err := axfrClient.Transfer(context.Background(), s.Remote, origin)
		if err != nil {
			return nil, fmt.Errorf("secondary zone %s: initial transfer from %s: %w", s.Origin, s.Remote, err)
		}
		zones.Add(z)
		logger.Info(map[string]any{"origin": s.Origin, "remote": s.Remote}, "transferred secondary zone")
		go refreshSecondary(axfrClient, zones, origin, s.Remote, logger)
	}

	keys := tsig.MapKeyStore{}
	for _, k := range jc.Keys {
		name, err := domain.ParseName(k.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("key %s: invalid name: %w", k.Name, err)
		}
		keys[name.Canonicalize().String()] = tsig.Key{
			Name:      name,
			Algorithm: k.Algorithm,
			Secret:    []byte(k.Secret),
			Fudge:     tsig.DefaultFudge,
		}
	}

	cache, err := dnscache.New(dnscache.Options{
		MaxEntries:       int(cfg.CacheMaxEntries),
		MaxTTLSeconds:    cfg.CacheMaxTTLSeconds,
		MaxNCacheSeconds: cfg.CacheMaxNCacheSeconds,
	}, &clock.RealClock{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache: %w", err)
	}

	var store *cachestore.Store
	if jc.CacheFile != "" {
		store, err = cachestore.Open(jc.CacheFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache file %s: %w", jc.CacheFile, err)
		}
		if err := store.Load(cache); err != nil {
			logger.Warn(map[string]any{"error": err.Error()}, "failed to restore cache snapshot")
		} else {
			logger.Info(map[string]any{"entries": cache.Len(), "file": jc.CacheFile}, "restored cache snapshot")
		}
	}

	resp := responder.New(zones, cache, keys, nil, nil, logger)

	var transports []transport.ServerTransport
	for _, addr := range jc.Addresses {
		for _, port := range jc.Ports {
			bindAddr := fmt.Sprintf("%s:%d", addr, port)
			udp, err := transport.New(transport.KindUDP, bindAddr, resp, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to build udp transport on %s: %w", bindAddr, err)
			}
			tcp, err := transport.New(transport.KindTCP, bindAddr, resp, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to build tcp transport on %s: %w", bindAddr, err)
			}
			transports = append(transports, udp, tcp)
		}
	}

	return &application{cfg: cfg, logger: logger, cache: cache, cacheStore: store, transports: transports}, nil
}

// refreshSecondary re-transfers a secondary zone on its SOA refresh
// interval, replacing the zoneset's copy on success and logging on
// failure without tearing down the previous (still-serving) copy.
func refreshSecondary(client *axfr.Client, zones *zoneset.Set, origin domain.Name, remote string, logger log.Logger) {
	for {
		interval := defaultZoneTTL
		if prev := zones.Best(origin); prev != nil {
			if soaRec, ok := prev.SOA(); ok {
				if soa, err := soaRec.SOA(); err == nil && soa.Refresh > 0 {
					interval = time.Duration(soa.Refresh) * time.Second
				}
			}
		}
		time.Sleep(interval)

		z, err := client.Transfer(context.Background(), remote, origin)
		if err != nil {
			logger.Warn(map[string]any{"origin": origin.String(), "remote": remote, "error": err.Error()}, "secondary zone refresh failed")
			continue
		}
		zones.Add(z)
		logger.Info(map[string]any{"origin": origin.String(), "remote": remote}, "refreshed secondary zone")
	}
}

// Run starts every transport and blocks until ctx is canceled, then shuts
// down gracefully, persisting the cache snapshot if configured.
func (a *application) Run(ctx context.Context) error {
	for _, t := range a.transports {
		if err := t.Start(ctx); err != nil {
			return fmt.Errorf("failed to start transport: %w", err)
		}
		a.logger.Info(map[string]any{"address": t.Address()}, "dns transport listening")
	}

	<-ctx.Done()
	a.logger.Info(nil, "shutdown initiated")

	for _, t := range a.transports {
		if err := t.Stop(); err != nil {
			a.logger.Warn(map[string]any{"error": err.Error()}, "error stopping transport")
		}
	}

	if a.cacheStore != nil {
		if err := a.cacheStore.Save(a.cache); err != nil {
			a.logger.Warn(map[string]any{"error": err.Error()}, "failed to persist cache snapshot")
		} else {
			a.logger.Info(map[string]any{"entries": a.cache.Len()}, "persisted cache snapshot")
		}
		if err := a.cacheStore.Close(); err != nil {
			a.logger.Warn(map[string]any{"error": err.Error()}, "error closing cache store")
		}
	}

	return nil
}
