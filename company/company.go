// Package company holds the nested Company records maintained alongside the
// VPN user directory, with partial updates recorded in a changelog.
package company

import (
	"crypto/rand"
	"math/big"
	"time"
)

type Company struct {
	PID                string        `json:"pid"`
	Name               string        `json:"name"`
	RegistrationNumber string        `json:"registration_number,omitempty"`
	Country            string        `json:"country,omitempty"` // ISO 3166-1 alpha-2
	Address            string        `json:"address,omitempty"`
	Directors          []Director    `json:"directors,omitempty"`
	Shareholders       []Shareholder `json:"shareholders,omitempty"`
	CreatedAt          time.Time     `json:"created_at,omitempty"`
	UpdatedAt          time.Time     `json:"updated_at,omitempty"`
}

type Director struct {
	PID      string `json:"pid"`
	FullName string `json:"full_name"`
	TIN      string `json:"tin,omitempty"` // tax identification number
}

type Shareholder struct {
	PID        string  `json:"pid"`
	FullName   string  `json:"full_name"`
	Percentage float64 `json:"percentage"`
}

// NewPID generates the 16-digit public identifier used for companies and
// their nested objects.
func NewPID() string {
	digits := make([]byte, 16)
	for i := range digits {
		v, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits)
}
