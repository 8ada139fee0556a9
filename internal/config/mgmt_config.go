package config

import (
	"strconv"
	"time"
)

type Mgmt struct{}

var _ MgmtConfig = Mgmt{}

func (Mgmt) GetMgmtHost() string {
	return GetEnv("MGMT_HOST", "127.0.0.1")
}

func (Mgmt) GetMgmtPort() int {
	return envInt("MGMT_PORT", 7505)
}

func (Mgmt) GetInitialBackoff() time.Duration {
	return envDuration("MGMT_BACKOFF_INITIAL", time.Second)
}

func (Mgmt) GetMaxBackoff() time.Duration {
	return envDuration("MGMT_BACKOFF_MAX", 30*time.Second)
}

// GetMaxRetries bounds consecutive connect failures. Zero retries forever.
func (Mgmt) GetMaxRetries() int {
	return envInt("MGMT_MAX_RETRIES", 0)
}

// GetValidationTimeout must stay comfortably below the VPN client's own
// connect timeout so the client observes our deny, not a protocol timeout.
func (Mgmt) GetValidationTimeout() time.Duration {
	return envDuration("MGMT_VALIDATION_TIMEOUT", 10*time.Second)
}

func (Mgmt) GetIdleSessionWindow() time.Duration {
	return envDuration("MGMT_IDLE_SESSION_WINDOW", time.Minute)
}

func (Mgmt) GetPurgeInterval() time.Duration {
	return envDuration("MGMT_PURGE_INTERVAL", 30*time.Second)
}

func (Mgmt) GetValidationWorkers() int {
	return envInt("MGMT_VALIDATION_WORKERS", 4)
}

func (Mgmt) GetDrainGrace() time.Duration {
	return envDuration("MGMT_DRAIN_GRACE", 5*time.Second)
}

func envInt(envVar string, defaultValue int) int {
	v, err := strconv.Atoi(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func envDuration(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return d
}
