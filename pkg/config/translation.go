// Package config defines the translation core's recognized
// configuration keys (spec §6) over the generic koanf-backed
// xconf.Config, and the defaulting/validation that turns raw config
// into the typed structs the router and its backends are constructed
// from.
package config

import (
	"time"

	"github.com/baketa-translate/core/pkg/config/xconf"
)

// Engine names one of the three translation backends for
// Translation.DefaultEngine.
type Engine string

const (
	EngineLocal      Engine = "Local"
	EngineSubprocess Engine = "Subprocess"
	EngineCloud      Engine = "Cloud"
)

// NLLB200Config configures the subprocess inference server (spec §6:
// Translation.NLLB200.*).
type NLLB200Config struct {
	ServerPort       int    `koanf:"server_port"`
	ServerScriptPath string `koanf:"server_script_path"`
}

// LocalConfig configures Backend-A, the in-process ONNX engine (spec
// §4.1-4.3). ModelPath empty means the local backend is not built at
// all — the daemon treats it as an opt-in, since it needs a model file
// on disk that isn't present in every deployment.
type LocalConfig struct {
	ModelPath           string   `koanf:"model_path"`
	SharedLibraryPath   string   `koanf:"shared_library_path"`
	SourceTokenizerPath string   `koanf:"source_tokenizer_path"`
	TargetTokenizerPath string   `koanf:"target_tokenizer_path"`
	UseGPU              bool     `koanf:"use_gpu"`
	NumThreads          int      `koanf:"num_threads"`
	InputNames          []string `koanf:"input_names"`
	OutputNames         []string `koanf:"output_names"`
}

// TranslationConfig is the `Translation.*` config block.
type TranslationConfig struct {
	DefaultEngine     Engine        `koanf:"default_engine"`
	NLLB200           NLLB200Config `koanf:"nllb200"`
	Local             LocalConfig   `koanf:"local"`
	UseExternalServer bool          `koanf:"use_external_server"`
	PoolCapacity      int           `koanf:"pool_capacity"`
	MaxSequenceLength int           `koanf:"max_sequence_length"`
	MaxOutputLength   int           `koanf:"max_output_length"`
	RepetitionPenalty float64       `koanf:"repetition_penalty"`
}

// CloudTranslationConfig is the `CloudTranslation.*` config block.
type CloudTranslationConfig struct {
	Enabled             bool   `koanf:"enabled"`
	RelayServerURL      string `koanf:"relay_server_url"`
	TimeoutSeconds      int    `koanf:"timeout_seconds"`
	MaxRetries          int    `koanf:"max_retries"`
	RetryDelayMs        int    `koanf:"retry_delay_ms"`
	PrimaryProviderID   string `koanf:"primary_provider_id"`
	SecondaryProviderID string `koanf:"secondary_provider_id"`
}

// Timeout derives a time.Duration from TimeoutSeconds.
func (c CloudTranslationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelay derives a time.Duration from RetryDelayMs.
func (c CloudTranslationConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// CircuitBreakerConfig is the circuit-breaker threshold/cool-down
// block referenced generically in spec §6.
type CircuitBreakerConfig struct {
	ConsecutiveFailures uint32 `koanf:"consecutive_failures"`
	CooldownSeconds     int    `koanf:"cooldown_seconds"`
}

// Cooldown derives a time.Duration from CooldownSeconds.
func (c CircuitBreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// QuotaConfig is the `Quota.*` config block: the Quota/License Gate's
// durable persistence (spec §4.10's license snapshot store and usage
// ledger), the distributed lock backend its Scheduler guards cron jobs
// with, and an optional billing-event sink.
type QuotaConfig struct {
	// MongoURI empty means the gate runs purely in memory: no
	// LicenseStore is attached and state does not survive a restart.
	MongoURI            string `koanf:"mongo_uri"`
	MongoDatabase        string `koanf:"mongo_database"`
	MongoLicenseCollection string `koanf:"mongo_license_collection"`

	// ClickHouseAddr empty means no UsageLedger is attached: Reconcile
	// still updates in-memory state but appends no audit trail.
	ClickHouseAddr     string `koanf:"clickhouse_addr"`
	ClickHouseDatabase string `koanf:"clickhouse_database"`
	ClickHouseUsername string `koanf:"clickhouse_username"`
	ClickHousePassword string `koanf:"clickhouse_password"`
	ClickHouseTable    string `koanf:"clickhouse_table"`

	// RedisAddr backs the xdlock.Factory the Scheduler's cron locker
	// and ad-hoc SyncBonusLedgerGuarded calls use. Empty means no
	// Scheduler is started — bonus-sync and rollover only happen as a
	// side effect of in-flight translate calls, never on a timer.
	RedisAddr string `koanf:"redis_addr"`

	BonusSyncCronSpec string `koanf:"bonus_sync_cron_spec"`
	RolloverCronSpec  string `koanf:"rollover_cron_spec"`

	// KafkaBrokers empty disables the optional billing-event sink even
	// if Mongo/ClickHouse/Redis are all configured.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`
}

// Root is the full recognized config surface for the translation core.
type Root struct {
	Translation      TranslationConfig     `koanf:"translation"`
	CloudTranslation CloudTranslationConfig `koanf:"cloud_translation"`
	CircuitBreaker   CircuitBreakerConfig   `koanf:"circuit_breaker"`
	Quota            QuotaConfig           `koanf:"quota"`
}

// DefaultRoot matches the defaults named throughout spec §4 and §6.
func DefaultRoot() Root {
	return Root{
		Translation: TranslationConfig{
			DefaultEngine:     EngineSubprocess,
			PoolCapacity:      10,
			MaxSequenceLength: 512,
			MaxOutputLength:   100,
			RepetitionPenalty: 1.2,
			Local: LocalConfig{
				InputNames:  []string{"input_ids", "attention_mask", "decoder_input_ids"},
				OutputNames: []string{"output"},
			},
		},
		CloudTranslation: CloudTranslationConfig{
			TimeoutSeconds: 30,
			MaxRetries:     3,
			RetryDelayMs:   1000,
		},
		CircuitBreaker: CircuitBreakerConfig{
			ConsecutiveFailures: 5,
			CooldownSeconds:     30,
		},
		Quota: QuotaConfig{
			MongoDatabase:          "baketa",
			MongoLicenseCollection: "licenses",
			ClickHouseDatabase:     "baketa",
			ClickHouseTable:        "translation_usage",
			BonusSyncCronSpec:      "@every 5m",
			RolloverCronSpec:       "@every 1h",
			KafkaTopic:             "baketa.quota.events",
		},
	}
}

// Load reads the full config from cfg and fills in any zero-valued
// field with DefaultRoot()'s value, mirroring xconf's
// "config as mutated externally, but never partially specified"
// convention for this module's own typed surface.
func Load(cfg xconf.Config) (Root, error) {
	root := DefaultRoot()
	if err := cfg.Unmarshal("", &root); err != nil {
		return Root{}, err
	}
	root = applyDefaults(root)
	return root, nil
}

func applyDefaults(root Root) Root {
	d := DefaultRoot()
	if root.Translation.DefaultEngine == "" {
		root.Translation.DefaultEngine = d.Translation.DefaultEngine
	}
	if root.Translation.PoolCapacity == 0 {
		root.Translation.PoolCapacity = d.Translation.PoolCapacity
	}
	if root.Translation.MaxSequenceLength == 0 {
		root.Translation.MaxSequenceLength = d.Translation.MaxSequenceLength
	}
	if root.Translation.MaxOutputLength == 0 {
		root.Translation.MaxOutputLength = d.Translation.MaxOutputLength
	}
	if root.Translation.RepetitionPenalty == 0 {
		root.Translation.RepetitionPenalty = d.Translation.RepetitionPenalty
	}
	if root.CloudTranslation.TimeoutSeconds == 0 {
		root.CloudTranslation.TimeoutSeconds = d.CloudTranslation.TimeoutSeconds
	}
	if root.CloudTranslation.MaxRetries == 0 {
		root.CloudTranslation.MaxRetries = d.CloudTranslation.MaxRetries
	}
	if root.CloudTranslation.RetryDelayMs == 0 {
		root.CloudTranslation.RetryDelayMs = d.CloudTranslation.RetryDelayMs
	}
	if root.CircuitBreaker.ConsecutiveFailures == 0 {
		root.CircuitBreaker.ConsecutiveFailures = d.CircuitBreaker.ConsecutiveFailures
	}
	if root.CircuitBreaker.CooldownSeconds == 0 {
		root.CircuitBreaker.CooldownSeconds = d.CircuitBreaker.CooldownSeconds
	}
	if len(root.Translation.Local.InputNames) == 0 {
		root.Translation.Local.InputNames = d.Translation.Local.InputNames
	}
	if len(root.Translation.Local.OutputNames) == 0 {
		root.Translation.Local.OutputNames = d.Translation.Local.OutputNames
	}
	if root.Quota.MongoDatabase == "" {
		root.Quota.MongoDatabase = d.Quota.MongoDatabase
	}
	if root.Quota.MongoLicenseCollection == "" {
		root.Quota.MongoLicenseCollection = d.Quota.MongoLicenseCollection
	}
	if root.Quota.ClickHouseDatabase == "" {
		root.Quota.ClickHouseDatabase = d.Quota.ClickHouseDatabase
	}
	if root.Quota.ClickHouseTable == "" {
		root.Quota.ClickHouseTable = d.Quota.ClickHouseTable
	}
	if root.Quota.BonusSyncCronSpec == "" {
		root.Quota.BonusSyncCronSpec = d.Quota.BonusSyncCronSpec
	}
	if root.Quota.RolloverCronSpec == "" {
		root.Quota.RolloverCronSpec = d.Quota.RolloverCronSpec
	}
	if root.Quota.KafkaTopic == "" {
		root.Quota.KafkaTopic = d.Quota.KafkaTopic
	}
	return root
}
