// Package config loads kernel configuration from three layered sources,
// lowest to highest priority: a config file (YAML/TOML/JSON) located by
// viper, environment variables prefixed CONCEPT_, and CLI flags parsed
// with a plain flag.FlagSet rather than cobra/pflag. viper supplies the
// file+env layers; flag values are overlaid by hand afterward, using
// fs.Visit to apply only the flags a caller actually passed, so an unset
// flag never overrides a file/env value.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TransportMapping describes how the kernel reaches one concept's
// transport: an adapter kind ("inprocess", "http", "websocket", "grpc")
// plus an address meaningful to that kind.
type TransportMapping struct {
	ConceptURI string
	Kind       string
	Address    string
}

// Config is the kernel's fully resolved runtime configuration.
type Config struct {
	SpecRoots  []string
	SyncRoots  []string
	Transports []TransportMapping

	StorageBackend string // "memory" or "bbolt"
	StoragePath    string

	HTTPAddr string

	OTLPEndpoint string
	OTLPService  string

	LogLevel  string
	LogPretty bool
}

type backendFlag struct {
	values []string
}

func (b *backendFlag) String() string { return strings.Join(b.values, ",") }
func (b *backendFlag) Set(v string) error {
	b.values = append(b.values, v)
	return nil
}

// Load resolves a Config from args (typically os.Args[1:]).
func Load(args []string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("concept")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("CONCEPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("spec.roots", []string{"."})
	v.SetDefault("sync.roots", []string{"."})
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.path", "concept.db")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("otel.service", "concept-kernel")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	fs := flag.NewFlagSet("concept", flag.ContinueOnError)
	configFile := fs.String("config", "", "Configuration file path (YAML/TOML/JSON)")
	specRoot := fs.String("spec.root", "", "Concept spec source root")
	syncRoot := fs.String("sync.root", "", "Sync spec source root")
	storageBackend := fs.String("storage.backend", "", "Storage backend: memory or bbolt")
	storagePath := fs.String("storage.path", "", "bbolt database path")
	httpAddr := fs.String("http.addr", "", "HTTP listen address")
	otlpEndpoint := fs.String("otel.endpoint", "", "OTLP collector endpoint")
	otlpService := fs.String("otel.service", "", "OpenTelemetry service name")
	logLevel := fs.String("log.level", "", "Log level: debug, info, warn, error")
	logPretty := fs.Bool("log.pretty", false, "Console-pretty log output instead of JSON")
	var transportFlag backendFlag
	fs.Var(&transportFlag, "transport", "Map concept URI to adapter, e.g. -transport Echo=http://host:port")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && *configFile != "" {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := &Config{
		SpecRoots:      v.GetStringSlice("spec.roots"),
		SyncRoots:      v.GetStringSlice("sync.roots"),
		StorageBackend: v.GetString("storage.backend"),
		StoragePath:    v.GetString("storage.path"),
		HTTPAddr:       v.GetString("http.addr"),
		OTLPEndpoint:   v.GetString("otel.endpoint"),
		OTLPService:    v.GetString("otel.service"),
		LogLevel:       v.GetString("log.level"),
		LogPretty:      v.GetBool("log.pretty"),
	}
	for _, raw := range v.GetStringSlice("transport.mappings") {
		m, err := parseTransportMapping(raw)
		if err != nil {
			return nil, err
		}
		cfg.Transports = append(cfg.Transports, m)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "spec.root":
			cfg.SpecRoots = []string{*specRoot}
		case "sync.root":
			cfg.SyncRoots = []string{*syncRoot}
		case "storage.backend":
			cfg.StorageBackend = *storageBackend
		case "storage.path":
			cfg.StoragePath = *storagePath
		case "http.addr":
			cfg.HTTPAddr = *httpAddr
		case "otel.endpoint":
			cfg.OTLPEndpoint = *otlpEndpoint
		case "otel.service":
			cfg.OTLPService = *otlpService
		case "log.level":
			cfg.LogLevel = *logLevel
		case "log.pretty":
			cfg.LogPretty = *logPretty
		}
	})
	for _, raw := range transportFlag.values {
		m, err := parseTransportMapping(raw)
		if err != nil {
			return nil, err
		}
		cfg.Transports = append(cfg.Transports, m)
	}

	if cfg.StorageBackend != "memory" && cfg.StorageBackend != "bbolt" {
		return nil, fmt.Errorf("config: unknown storage backend %q", cfg.StorageBackend)
	}
	return cfg, nil
}

// parseTransportMapping parses "ConceptURI=kind://address" (e.g.
// "Echo=http://localhost:9001" or "Export=grpc://localhost:9002").
func parseTransportMapping(raw string) (TransportMapping, error) {
	eq := strings.IndexByte(raw, '=')
	if eq < 0 {
		return TransportMapping{}, fmt.Errorf("config: invalid transport mapping %q", raw)
	}
	conceptURI, rest := raw[:eq], raw[eq+1:]
	if conceptURI == "" || rest == "" {
		return TransportMapping{}, fmt.Errorf("config: invalid transport mapping %q", raw)
	}
	sep := strings.Index(rest, "://")
	if sep < 0 {
		return TransportMapping{ConceptURI: conceptURI, Kind: "inprocess", Address: rest}, nil
	}
	return TransportMapping{ConceptURI: conceptURI, Kind: rest[:sep], Address: rest[sep+3:]}, nil
}

// DefaultRPCTimeout is the default remote-call budget for HTTP/gRPC transports.
const DefaultRPCTimeout = 3 * time.Second
