package config

import "time"

type Config interface {
	EnvConfig
	MgmtConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
}

// MgmtConfig carries the management channel settings: where the tunnel
// daemon's control socket lives and how the supervisor behaves around it.
type MgmtConfig interface {
	GetMgmtHost() string
	GetMgmtPort() int
	GetInitialBackoff() time.Duration
	GetMaxBackoff() time.Duration
	GetMaxRetries() int
	GetValidationTimeout() time.Duration
	GetIdleSessionWindow() time.Duration
	GetPurgeInterval() time.Duration
	GetValidationWorkers() int
	GetDrainGrace() time.Duration
}

type SecurityConfig interface {
	GetJWTSecret() string
	GetAccessTokenExpiry() time.Duration
	GetTempTokenExpiry() time.Duration
	GetLoginRatePerSecond() float64
	GetLoginRateBurst() int
}

type mainConfig struct {
	EnvVars
	Mgmt
	Security
}

func New() Config {
	return mainConfig{}
}
