package coremain

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ar-io/observer-core/mlog"
)

// TimeoutConfig overrides the Resolver/OwnershipProbe per-phase profile.
// Any field left at zero falls back to assess.DefaultResolverTimeouts.
type TimeoutConfig struct {
	DNS     time.Duration `yaml:"dns" mapstructure:"dns"`
	Connect time.Duration `yaml:"connect" mapstructure:"connect"`
	TLS     time.Duration `yaml:"tls" mapstructure:"tls"`
	Idle    time.Duration `yaml:"idle" mapstructure:"idle"`
}

// CacheConfig selects and sizes the reference-gateway resolution cache.
// It is intra-run only: nothing here ever outlives a single GenerateReport
// call.
type CacheConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Size sets the in-process sharded LRU's total capacity, split evenly
	// across 16 shards with a floor of 16 entries per shard (so never
	// below 256).
	Size int `yaml:"size" mapstructure:"size"`
	// RedisAddr, RedisDB, RedisTimeout apply only when Backend == "redis".
	RedisAddr    string        `yaml:"redisAddr" mapstructure:"redisAddr"`
	RedisDB      int           `yaml:"redisDB" mapstructure:"redisDB"`
	RedisTimeout time.Duration `yaml:"redisTimeout" mapstructure:"redisTimeout"`
	// RedisTTL bounds how long a reference entry may live in Redis.
	// Defaults to 60s.
	RedisTTL time.Duration `yaml:"redisTTL" mapstructure:"redisTTL"`
}

// MetricsConfig controls the /metrics, /healthz, and pprof HTTP mux.
type MetricsConfig struct {
	// Addr is the bind address, e.g. ":9274". Empty disables the mux.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// ServiceConfig is decoded from YAML but not read by the `service`
// subcommand group: the kardianos/service wrapper always uses the fixed
// name, display name and description set in svcConfig.
type ServiceConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	DisplayName string `yaml:"displayName" mapstructure:"displayName"`
	Description string `yaml:"description" mapstructure:"description"`
}

// Config is the full process configuration, loaded from YAML.
type Config struct {
	ObserverAddress      string `yaml:"observerAddress" mapstructure:"observerAddress"`
	ReferenceGatewayHost string `yaml:"referenceGatewayHost" mapstructure:"referenceGatewayHost"`

	GatewayAssessmentConcurrency int `yaml:"gatewayAssessmentConcurrency" mapstructure:"gatewayAssessmentConcurrency"`
	NameAssessmentConcurrency    int `yaml:"nameAssessmentConcurrency" mapstructure:"nameAssessmentConcurrency"`

	// EpochPollInterval governs how often `run` checks EpochHeightSource
	// for a new epoch. A single in-flight report is never interrupted by
	// a tick; the next tick after it finishes picks up any config change.
	EpochPollInterval time.Duration `yaml:"epochPollInterval" mapstructure:"epochPollInterval"`

	PrescribedNames []string           `yaml:"prescribedNames" mapstructure:"prescribedNames"`
	ChosenNames     []string           `yaml:"chosenNames" mapstructure:"chosenNames"`
	GatewayHosts    []GatewayHostEntry `yaml:"gatewayHosts" mapstructure:"gatewayHosts"`

	Timeouts TimeoutConfig `yaml:"timeouts" mapstructure:"timeouts"`
	Log      mlog.Config   `yaml:"log" mapstructure:"log"`
	Metrics  MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Cache    CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Service  ServiceConfig `yaml:"service" mapstructure:"service"`
}

// GatewayHostEntry mirrors assess.GatewayHostEntry for YAML decoding; the
// daemon converts it when constructing the static GatewayHostsSource.
type GatewayHostEntry struct {
	FQDN   string `yaml:"fqdn" mapstructure:"fqdn"`
	Wallet string `yaml:"wallet" mapstructure:"wallet"`
}

func setConfigDefaults(cfg *Config) {
	if cfg.GatewayAssessmentConcurrency < 1 {
		cfg.GatewayAssessmentConcurrency = 8
	}
	if cfg.NameAssessmentConcurrency < 1 {
		cfg.NameAssessmentConcurrency = 8
	}
	if cfg.EpochPollInterval <= 0 {
		cfg.EpochPollInterval = 30 * time.Second
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Size = 4096
	}
	if cfg.Cache.RedisTTL <= 0 {
		cfg.Cache.RedisTTL = 60 * time.Second
	}
}

// loadConfig loads a config from filePath, or searches for a file named
// "config.*" in the working directory when filePath is empty. Unknown
// keys are a load-time error, matching the teacher's strictness.
func loadConfig(filePath string) (*Config, *viper.Viper, error) {
	v := viper.New()

	if filePath != "" {
		v.SetConfigFile(filePath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := decodeConfig(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	decoderOpt := func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg, decoderOpt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	setConfigDefaults(cfg)
	return cfg, nil
}
