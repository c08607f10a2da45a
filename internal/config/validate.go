package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("market.timezone %q is invalid: %w", c.Market.Timezone, err)
	}
	if c.Market.CutoffHour < 0 || c.Market.CutoffHour > 23 {
		return fmt.Errorf("market.cutoff_hour must be between 0 and 23, got %d", c.Market.CutoffHour)
	}
	for _, d := range c.Market.ExtraHolidays {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return fmt.Errorf("market.extra_holidays entry %q must be YYYY-MM-DD", d)
		}
	}

	providers := []struct {
		prefix string
		p      ProviderConfig
	}{
		{"providers.b3", c.Providers.B3},
		{"providers.anbima", c.Providers.ANBIMA},
		{"providers.ibge", c.Providers.IBGE},
		{"providers.sidra", c.Providers.SIDRA},
		{"providers.bcb", c.Providers.BCB},
	}
	for _, pc := range providers {
		if err := pc.p.validate(pc.prefix); err != nil {
			return err
		}
	}

	switch c.Storage.Compression {
	case "zstd", "gzip", "snappy", "none":
	default:
		return fmt.Errorf("storage.compression must be one of zstd, gzip, snappy, none, got %q", c.Storage.Compression)
	}

	datasets := map[string]DatasetConfig{
		"datasets.di1":           c.Datasets.DI1,
		"datasets.tpf":           c.Datasets.TPF,
		"datasets.vna":           c.Datasets.VNA.DatasetConfig,
		"datasets.bcb_secondary": c.Datasets.BCB,
	}
	enabled := 0
	for _, prefix := range []string{"datasets.di1", "datasets.tpf", "datasets.vna", "datasets.bcb_secondary"} {
		d := datasets[prefix]
		if err := d.validate(prefix); err != nil {
			return err
		}
		if d.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return errors.New("at least one dataset must be enabled")
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Job.Concurrency < 1 {
		return errors.New("job.concurrency must be >= 1")
	}
	for _, s := range c.Job.Schedule {
		if _, err := time.Parse("15:04", s); err != nil {
			return fmt.Errorf("job.schedule entry %q must be HH:MM", s)
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (p *ProviderConfig) validate(prefix string) error {
	if p.BaseURL == "" {
		return fmt.Errorf("%s.base_url is required", prefix)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("%s.timeout must be >= 0, got %s", prefix, p.Timeout)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%s.max_retries must be >= 0, got %d", prefix, p.MaxRetries)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("%s.retry_delay must be >= 0, got %s", prefix, p.RetryDelay)
	}
	if p.RateLimit < 0 {
		return fmt.Errorf("%s.rate_limit must be >= 0, got %g", prefix, p.RateLimit)
	}
	if p.Burst < 0 {
		return fmt.Errorf("%s.burst must be >= 0, got %d", prefix, p.Burst)
	}
	return nil
}

func (d *DatasetConfig) validate(prefix string) error {
	if d.File == "" {
		return fmt.Errorf("%s.file is required", prefix)
	}
	if d.OnError != OnErrorFail && d.OnError != OnErrorLog {
		return fmt.Errorf("%s.on_error must be %q or %q, got %q", prefix, OnErrorFail, OnErrorLog, d.OnError)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
