// Package mgmt implements the management-interface authentication service:
// a persistent TCP client on the tunnel daemon's control channel that
// consumes per-client connection notifications, validates the embedded
// credentials against the user directory, and answers each connection
// attempt with exactly one accept or deny directive.
package mgmt

import (
	"fmt"
	"strings"
)

// ConnectionKey identifies one connection attempt's authentication exchange.
// Both identifiers are opaque strings assigned by the tunnel daemon and are
// unique for the lifetime of that attempt.
type ConnectionKey struct {
	ClientID string
	KeyID    string
}

func (k ConnectionKey) String() string {
	return k.ClientID + "/" + k.KeyID
}

// Notification line shapes on the control channel. Everything else on the
// wire (banner, command replies, log lines) is not addressed to us.
const (
	clientLinePrefix = ">CLIENT:"
	connectPrefix    = ">CLIENT:CONNECT,"
	disconnectPrefix = ">CLIENT:DISCONNECT,"
	envPrefix        = ">CLIENT:ENV,"
	envEndMarker     = ">CLIENT:ENV,END"
)

// Environment variable names carrying the credentials.
const (
	envUsername = "username"
	envPassword = "password"
)

// otpDelimiter separates the base password from the one-time code in the
// password field. A password that legitimately contains the delimiter is a
// known limitation of the convention; there is no escaping.
const otpDelimiter = ";"

// SplitPassword splits the raw password field into the base password and the
// optional one-time code. Absence of the delimiter means no code supplied.
func SplitPassword(raw string) (basePassword, otpCode string) {
	if idx := strings.Index(raw, otpDelimiter); idx >= 0 {
		return raw[:idx], raw[idx+1:]
	}
	return raw, ""
}

// Decision is the terminal outcome of one authentication exchange.
type Decision struct {
	Allow  bool
	Reason string // operator-facing deny reason, empty on accept
}

func Accept() Decision {
	return Decision{Allow: true}
}

func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Deny reasons. These are surfaced to operators through logs and the deny
// directive, not to the remote peer.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonMissingCode        = "missing_code"
	ReasonInvalidCode        = "invalid_code"
	ReasonValidationError    = "validation_error"
	ReasonValidationTimeout  = "validation_timeout"
)

// FormatDirective renders the control-channel command answering the
// connection attempt identified by key.
func FormatDirective(key ConnectionKey, decision Decision) string {
	if decision.Allow {
		return fmt.Sprintf("client-auth-nt %s %s", key.ClientID, key.KeyID)
	}
	return fmt.Sprintf("client-deny %s %s %q", key.ClientID, key.KeyID, decision.Reason)
}
