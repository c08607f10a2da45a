package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTimezone       = "America/Sao_Paulo"
	DefaultCutoffHour     = 20
	DefaultB3URL          = "https://www2.bmf.com.br/pages/portal/bmfbovespa/boletim1"
	DefaultANBIMAURL      = "https://www.anbima.com.br"
	DefaultIBGEURL        = "https://servicodados.ibge.gov.br/api/v3"
	DefaultSIDRAURL       = "https://apisidra.ibge.gov.br"
	DefaultBCBURL         = "https://www4.bcb.gov.br/pom/demab/negociacoes/download"
	DefaultAPITimeout     = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 1 * time.Second
	DefaultDataDir        = "data"
	DefaultCompression    = "zstd"
	DefaultOnError        = OnErrorFail
	DefaultDI1File        = "b3_di.parquet"
	DefaultTPFFile        = "anbima_tpf.parquet"
	DefaultVNAFile        = "vna_ntnb.parquet"
	DefaultVNABaseFile    = "vna_base.csv"
	DefaultBCBFile        = "bc_secundario.parquet"
	DefaultIPCAMonthsBack = 4
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultDBSchema       = "public"
	DefaultMaxConns       = 4
	DefaultMinConns       = 1
	DefaultConcurrency    = 2
	DefaultJobTimeout     = 10 * time.Minute
	DefaultSchedule       = "20:30"
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
)

// Failure policies for a dataset update.
const (
	OnErrorFail = "fail"
	OnErrorLog  = "log"
)

func (c *Config) applyDefaults() {
	// Market defaults
	if c.Market.Timezone == "" {
		c.Market.Timezone = DefaultTimezone
	}
	if c.Market.CutoffHour == 0 {
		c.Market.CutoffHour = DefaultCutoffHour
	}

	// Provider defaults
	applyProviderDefaults(&c.Providers.B3, DefaultB3URL)
	applyProviderDefaults(&c.Providers.ANBIMA, DefaultANBIMAURL)
	applyProviderDefaults(&c.Providers.IBGE, DefaultIBGEURL)
	applyProviderDefaults(&c.Providers.SIDRA, DefaultSIDRAURL)
	applyProviderDefaults(&c.Providers.BCB, DefaultBCBURL)

	// Storage defaults
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = DefaultDataDir
	}
	if c.Storage.Compression == "" {
		c.Storage.Compression = DefaultCompression
	}

	// Dataset defaults
	applyDatasetDefaults(&c.Datasets.DI1, DefaultDI1File)
	applyDatasetDefaults(&c.Datasets.TPF, DefaultTPFFile)
	applyDatasetDefaults(&c.Datasets.VNA.DatasetConfig, DefaultVNAFile)
	applyDatasetDefaults(&c.Datasets.BCB, DefaultBCBFile)
	if c.Datasets.VNA.BaseFile == "" {
		c.Datasets.VNA.BaseFile = DefaultVNABaseFile
	}
	if c.Datasets.VNA.IPCAMonthsBack == 0 {
		c.Datasets.VNA.IPCAMonthsBack = DefaultIPCAMonthsBack
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.Schema == "" {
		c.Database.Schema = DefaultDBSchema
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Job defaults
	if c.Job.Concurrency == 0 {
		c.Job.Concurrency = DefaultConcurrency
	}
	if c.Job.Timeout == 0 {
		c.Job.Timeout = DefaultJobTimeout
	}
	if len(c.Job.Schedule) == 0 {
		c.Job.Schedule = []string{DefaultSchedule}
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyProviderDefaults(p *ProviderConfig, baseURL string) {
	if p.BaseURL == "" {
		p.BaseURL = baseURL
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultAPITimeout
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = DefaultRetryDelay
	}
}

func applyDatasetDefaults(d *DatasetConfig, file string) {
	if d.File == "" {
		d.File = file
	}
	if d.OnError == "" {
		d.OnError = DefaultOnError
	}
}
