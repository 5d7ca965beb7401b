// Command concept is the kernel's reference entrypoint: it loads concept
// and sync specs from disk, wires concepts to their configured transports,
// and serves the HTTP entry point, using the same flag-dispatched
// subcommand CLI shape as this codebase's other entrypoints.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/config"
	"github.com/conceptkit/ckit/internal/dsl"
	"github.com/conceptkit/ckit/internal/httpserver"
	"github.com/conceptkit/ckit/internal/kernel"
	"github.com/conceptkit/ckit/internal/manifest"
	"github.com/conceptkit/ckit/internal/otel"
	"github.com/conceptkit/ckit/internal/storage"
	"github.com/conceptkit/ckit/internal/synccompile"
	"github.com/conceptkit/ckit/internal/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "concept:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return cmdServe(args)
	}
	switch args[0] {
	case "serve":
		return cmdServe(args[1:])
	case "help", "-h", "--help":
		return cmdHelp()
	default:
		return cmdServe(args)
	}
}

func cmdHelp() error {
	fmt.Println(`concept — concept/sync kernel

Usage:
  concept [serve] [flags]

Flags are defined in internal/config.Load; run "concept serve -h" to
print the flag list.`)
	return nil
}

// manifestIndex implements synccompile.KnownConcepts over the manifests
// loaded from cfg.SpecRoots.
type manifestIndex struct {
	byURI map[string]*manifest.Manifest
}

func (idx *manifestIndex) Has(conceptURI string) bool {
	_, ok := idx.byURI[conceptURI]
	return ok
}

func cmdServe(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)

	manifests, err := loadManifests(cfg.SpecRoots)
	if err != nil {
		return fmt.Errorf("load concept specs: %w", err)
	}
	idx := &manifestIndex{byURI: manifests}

	var store storage.Store
	var log actionlog.Log
	switch cfg.StorageBackend {
	case "bbolt":
		durableStore, err := storage.OpenDurable(cfg.StoragePath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer durableStore.Close()
		durableLog, err := actionlog.OpenDurable(cfg.StoragePath + ".log")
		if err != nil {
			return fmt.Errorf("open action log: %w", err)
		}
		defer durableLog.Close()
		store, log = durableStore, durableLog
	default:
		store, log = storage.NewMemory(), actionlog.NewMemory()
	}

	registry := transport.NewRegistry()
	k := kernel.New(log, registry, store, logger)

	for _, tm := range cfg.Transports {
		t, err := buildTransport(tm)
		if err != nil {
			return fmt.Errorf("wire transport for %s: %w", tm.ConceptURI, err)
		}
		k.RegisterConcept(tm.ConceptURI, t)
	}

	syncs, err := loadSyncs(cfg.SyncRoots, idx)
	if err != nil {
		return fmt.Errorf("load syncs: %w", err)
	}
	for _, s := range syncs {
		k.RegisterSync(s)
	}

	shutdown, err := otel.Setup(cfg.OTLPEndpoint, cfg.OTLPService)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer shutdown(context.Background())

	handler := httpserver.New(k, "Web", "request")

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("serving")
	return http.ListenAndServe(cfg.HTTPAddr, handler)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var writer = os.Stderr
	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	if cfg.LogPretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339})
	}
	return logger
}

func buildTransport(tm config.TransportMapping) (transport.Transport, error) {
	switch tm.Kind {
	case "http":
		return transport.NewHTTP(tm.Address, config.DefaultRPCTimeout), nil
	case "websocket":
		return transport.NewWebSocket(transport.DefaultWebSocketConfig(tm.Address)), nil
	default:
		return nil, fmt.Errorf("unsupported transport kind %q for in-memory concepts; register in-process handlers in code", tm.Kind)
	}
}

func loadManifests(roots []string) (map[string]*manifest.Manifest, error) {
	out := make(map[string]*manifest.Manifest)
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".concept") {
				return err
			}
			src, readErr := os.ReadFile(path)
			if readErr != nil {
				return readErr
			}
			spec, parseErr := dsl.ParseConcept(path, string(src))
			if parseErr != nil {
				return fmt.Errorf("%s: %w", path, parseErr)
			}
			uri := strings.TrimSuffix(filepath.Base(path), ".concept")
			m, buildErr := manifest.Build(spec, uri)
			if buildErr != nil {
				return fmt.Errorf("%s: %w", path, buildErr)
			}
			out[uri] = m
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loadSyncs(roots []string, known synccompile.KnownConcepts) ([]*synccompile.CompiledSync, error) {
	var out []*synccompile.CompiledSync
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".sync") {
				return err
			}
			src, readErr := os.ReadFile(path)
			if readErr != nil {
				return readErr
			}
			raws, parseErr := dsl.ParseSyncFile(path, string(src))
			if parseErr != nil {
				return fmt.Errorf("%s: %w", path, parseErr)
			}
			for _, raw := range raws {
				compiled, _, compileErr := synccompile.Compile(raw, known)
				if compileErr != nil {
					return fmt.Errorf("%s: %w", path, compileErr)
				}
				out = append(out, compiled)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
