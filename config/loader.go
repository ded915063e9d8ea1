package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/pkg/cache"
	"github.com/c360/ciboard/upstream"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "CIBOARD"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	environ    func() []string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: EnvPrefix,
		environ:   os.Environ,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones key by key; an instance map entry is replaced as a whole.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer and the environment
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range l.layers {
		if err := l.applyLayer(cfg, path); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "environment overrides")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) applyLayer(cfg *Config, path string) error {
	data, err := safeReadFile(path)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return nil
}

func (l *Loader) lookup(key string) (string, bool, error) {
	name := l.envPrefix + "_" + key
	for _, kv := range l.environ() {
		k, v, _ := strings.Cut(kv, "=")
		if k != name || v == "" {
			continue
		}
		if err := validateEnvVar(k, v); err != nil {
			return "", false, err
		}
		return v, true, nil
	}
	return "", false, nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	single := []struct {
		key   string
		apply func(string)
	}{
		{"BIND_ADDRESS", func(v string) { cfg.Server.BindAddress = v }},
		{"ES_URL", func(v string) { cfg.Search.Addresses = splitList(v) }},
		{"ES_USERNAME", func(v string) { cfg.Search.Username = v }},
		{"ES_PASSWORD", func(v string) { cfg.Search.Password = v }},
		{"ES_INDEX_PREFIX", func(v string) { cfg.Search.IndexPrefix = v }},
		{"GREENWAVE_URL", func(v string) { cfg.Greenwave.URL = v }},
		{"WAIVERDB_URL", func(v string) { cfg.WaiverDB.URL = v }},
		{"CACHE_BACKEND", func(v string) { cfg.Cache.Backend = cache.Backend(v) }},
		{"NATS_URL", func(v string) { cfg.Cache.NATS.URL = v }},
	}
	for _, o := range single {
		v, ok, err := l.lookup(o.key)
		if err != nil {
			return err
		}
		if ok {
			o.apply(v)
		}
	}

	var err error
	if cfg.Koji.Instances, err = l.instanceOverrides("KOJI", cfg.Koji.Instances); err != nil {
		return err
	}
	if cfg.MBS, err = l.instanceOverrides("MBS", cfg.MBS); err != nil {
		return err
	}
	if cfg.DistGit, err = l.instanceOverrides("DISTGIT", cfg.DistGit); err != nil {
		return err
	}
	return nil
}

// instanceOverrides applies <PREFIX>_<SERVICE>_<INSTANCE>_URL variables
func (l *Loader) instanceOverrides(service string, instances upstream.Instances) (upstream.Instances, error) {
	prefix := l.envPrefix + "_" + service + "_"
	for _, kv := range l.environ() {
		k, v, _ := strings.Cut(kv, "=")
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok || v == "" {
			continue
		}
		name, ok := strings.CutSuffix(rest, "_URL")
		if !ok || name == "" {
			continue
		}
		name = strings.ToLower(name)
		if err := validateEnvVar(k, v); err != nil {
			return nil, err
		}
		if instances == nil {
			instances = upstream.Instances{}
		}
		inst := instances[name]
		inst.URL = v
		instances[name] = inst
	}
	return instances, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
