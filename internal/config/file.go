package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// fileSettings mirrors the optional TOML configuration file. Only the
// management channel section is file-configurable; everything else stays on
// environment variables. Durations are written as Go duration strings.
type fileSettings struct {
	Management struct {
		Host              string `toml:"host"`
		Port              int    `toml:"port"`
		InitialBackoff    string `toml:"initial_backoff"`
		MaxBackoff        string `toml:"max_backoff"`
		MaxRetries        int    `toml:"max_retries"`
		ValidationTimeout string `toml:"validation_timeout"`
		IdleSessionWindow string `toml:"idle_session_window"`
		PurgeInterval     string `toml:"purge_interval"`
		ValidationWorkers int    `toml:"validation_workers"`
		DrainGrace        string `toml:"drain_grace"`
	} `toml:"management"`
}

// fileOverlay layers file values over the environment-backed Config.
type fileOverlay struct {
	Config
	file fileSettings
}

// Load reads the TOML file at path and returns a Config that prefers the
// file's management settings over environment variables. A missing file is
// not an error; the environment-backed config is returned unchanged.
func Load(path string) (Config, error) {
	base := New()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[config.Load] read file")
	}
	var fs fileSettings
	if err := toml.Unmarshal(data, &fs); err != nil {
		return nil, errors.Wrap(err, "[config.Load] parse toml")
	}
	return fileOverlay{Config: base, file: fs}, nil
}

func (c fileOverlay) GetMgmtHost() string {
	if c.file.Management.Host != "" {
		return c.file.Management.Host
	}
	return c.Config.GetMgmtHost()
}

func (c fileOverlay) GetMgmtPort() int {
	if c.file.Management.Port != 0 {
		return c.file.Management.Port
	}
	return c.Config.GetMgmtPort()
}

func (c fileOverlay) GetInitialBackoff() time.Duration {
	return c.fileDuration(c.file.Management.InitialBackoff, c.Config.GetInitialBackoff)
}

func (c fileOverlay) GetMaxBackoff() time.Duration {
	return c.fileDuration(c.file.Management.MaxBackoff, c.Config.GetMaxBackoff)
}

func (c fileOverlay) GetMaxRetries() int {
	if c.file.Management.MaxRetries != 0 {
		return c.file.Management.MaxRetries
	}
	return c.Config.GetMaxRetries()
}

func (c fileOverlay) GetValidationTimeout() time.Duration {
	return c.fileDuration(c.file.Management.ValidationTimeout, c.Config.GetValidationTimeout)
}

func (c fileOverlay) GetIdleSessionWindow() time.Duration {
	return c.fileDuration(c.file.Management.IdleSessionWindow, c.Config.GetIdleSessionWindow)
}

func (c fileOverlay) GetPurgeInterval() time.Duration {
	return c.fileDuration(c.file.Management.PurgeInterval, c.Config.GetPurgeInterval)
}

func (c fileOverlay) GetValidationWorkers() int {
	if c.file.Management.ValidationWorkers != 0 {
		return c.file.Management.ValidationWorkers
	}
	return c.Config.GetValidationWorkers()
}

func (c fileOverlay) GetDrainGrace() time.Duration {
	return c.fileDuration(c.file.Management.DrainGrace, c.Config.GetDrainGrace)
}

func (c fileOverlay) fileDuration(value string, fallback func() time.Duration) time.Duration {
	if value == "" {
		return fallback()
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback()
	}
	return d
}
