package commands

import (
	"fmt"
	"qualflat/internal/etl"
	"qualflat/internal/flatten"
	"qualflat/internal/qualtrics"
	"qualflat/lib/configutil"
	configlibsql "qualflat/lib/configutil/libsql"
	"time"
)

const tokenEnv = "QUALTRICS_API_TOKEN"

type ApiConfig struct {
	// falls back to the QUALTRICS_API_TOKEN environment variable (or .env)
	Token   string `json:"token"`
	BaseUrl string `json:"base_url"`
	// a duration string like "30s", defaults to one minute
	Timeout           string  `json:"timeout"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

type ExportConfig struct {
	PollInterval string `json:"poll_interval"`
	// zero means unbounded
	MaxAttempts int    `json:"max_attempts"`
	MaxWait     string `json:"max_wait"`
}

type FlattenConfig struct {
	// "first" (default) or "strict"
	Collision           string `json:"collision"`
	IncludeEmbeddedData bool   `json:"include_embedded_data"`
}

type Config struct {
	Api      ApiConfig           `json:"api"`
	Export   ExportConfig        `json:"export"`
	Flatten  FlattenConfig       `json:"flatten"`
	Database configlibsql.Struct `json:"database"`
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", field)
	}
	return d, nil
}

func readConfig(path string) (Config, error) {
	config, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if config.Api.Token == "" {
		config.Api.Token = configutil.EnvOr(tokenEnv, "")
	}
	return config, nil
}

func (c Config) clientOptions() (qualtrics.ClientOptions, error) {
	timeout, err := parseDuration("api.timeout", c.Api.Timeout)
	if err != nil {
		return qualtrics.ClientOptions{}, err
	}
	if c.Api.Token == "" {
		return qualtrics.ClientOptions{}, fmt.Errorf("api.token is empty and %s is not set", tokenEnv)
	}
	return qualtrics.ClientOptions{
		BaseUrl:           c.Api.BaseUrl,
		Token:             c.Api.Token,
		Timeout:           timeout,
		RequestsPerSecond: c.Api.RequestsPerSecond,
	}, nil
}

func (c Config) serviceOptions() (etl.ServiceOptions, error) {
	interval, err := parseDuration("export.poll_interval", c.Export.PollInterval)
	if err != nil {
		return etl.ServiceOptions{}, err
	}
	maxWait, err := parseDuration("export.max_wait", c.Export.MaxWait)
	if err != nil {
		return etl.ServiceOptions{}, err
	}
	if c.Export.MaxAttempts < 0 {
		return etl.ServiceOptions{}, fmt.Errorf("export.max_attempts: must not be negative")
	}
	collision, err := flatten.ParseCollision(c.Flatten.Collision)
	if err != nil {
		return etl.ServiceOptions{}, fmt.Errorf("flatten.collision: %w", err)
	}

	return etl.ServiceOptions{
		Flatten: flatten.Options{
			Collision:           collision,
			IncludeEmbeddedData: c.Flatten.IncludeEmbeddedData,
		},
		Poll: qualtrics.PollPolicy{
			Interval:    interval,
			MaxAttempts: c.Export.MaxAttempts,
			MaxWait:     maxWait,
		},
	}, nil
}
