package config

import (
	"strconv"
	"time"
)

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetJWTSecret() string {
	return GetEnv("JWT_SECRET", "dev-only-insecure-secret")
}

func (Security) GetAccessTokenExpiry() time.Duration {
	return envDuration("ACCESS_TOKEN_EXPIRY", time.Hour)
}

// GetTempTokenExpiry bounds the window between login step 1 and the
// two-factor verification in step 2.
func (Security) GetTempTokenExpiry() time.Duration {
	return envDuration("TEMP_TOKEN_EXPIRY", 15*time.Minute)
}

func (Security) GetLoginRatePerSecond() float64 {
	v, err := strconv.ParseFloat(GetEnv("LOGIN_RATE_PER_SECOND", ""), 64)
	if err != nil {
		return 1
	}
	return v
}

func (Security) GetLoginRateBurst() int {
	return envInt("LOGIN_RATE_BURST", 5)
}
