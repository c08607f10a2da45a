package config

import "time"

// Config is the root configuration for the history updater.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Market    MarketConfig    `yaml:"market"`
	Providers ProvidersConfig `yaml:"providers"`
	Storage   StorageConfig   `yaml:"storage"`
	Datasets  DatasetsConfig  `yaml:"datasets"`
	Database  DBConfig        `yaml:"database"`
	Job       JobConfig       `yaml:"job"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this updater in logs, metrics and the run ledger.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// MarketConfig holds the trading calendar settings.
type MarketConfig struct {
	Timezone      string   `yaml:"timezone"`
	CutoffHour    int      `yaml:"cutoff_hour"`
	HolidaysFile  string   `yaml:"holidays_file"`
	ExtraHolidays []string `yaml:"extra_holidays"` // YYYY-MM-DD
}

// ProvidersConfig holds one endpoint block per market-data provider.
type ProvidersConfig struct {
	B3     ProviderConfig `yaml:"b3"`
	ANBIMA ProviderConfig `yaml:"anbima"`
	IBGE   ProviderConfig `yaml:"ibge"`
	SIDRA  ProviderConfig `yaml:"sidra"`
	BCB    ProviderConfig `yaml:"bcb"`
}

// ProviderConfig holds HTTP settings for a single provider.
type ProviderConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst      int           `yaml:"burst"`
}

// StorageConfig holds local columnar storage settings.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	Compression string `yaml:"compression"` // zstd, gzip, snappy, none
	Snapshot    bool   `yaml:"snapshot"`    // also write a gzip CSV next to each parquet file
}

// DatasetsConfig enables and configures each dataset.
type DatasetsConfig struct {
	DI1 DatasetConfig `yaml:"di1"`
	TPF DatasetConfig `yaml:"tpf"`
	VNA VNAConfig     `yaml:"vna"`
	BCB DatasetConfig `yaml:"bcb_secondary"`
}

// DatasetConfig holds per-dataset settings.
type DatasetConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`     // relative to storage.data_dir
	OnError string `yaml:"on_error"` // fail or log
}

// VNAConfig extends DatasetConfig with the base VNA table.
type VNAConfig struct {
	DatasetConfig  `yaml:",inline"`
	BaseFile       string `yaml:"base_file"`
	IPCAMonthsBack int    `yaml:"ipca_months_back"`
}

// DBConfig holds the optional Postgres mirror connection.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	Schema   string `yaml:"schema"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// JobConfig holds run orchestration settings.
type JobConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	Schedule    []string      `yaml:"schedule"` // HH:MM in market timezone, daemon mode only
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Port           int    `yaml:"port"`
	Path           string `yaml:"path"`
}
