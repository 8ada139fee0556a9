package mgmt

import "errors"

var (
	TransportErr         = errors.New("transport failure")
	ProtocolAnomalyErr   = errors.New("protocol anomaly")
	UnknownKeyErr        = errors.New("unknown connection key")
	DuplicateKeyErr      = errors.New("duplicate connection key")
	DuplicateDecisionErr = errors.New("duplicate decision")
	AlreadyCompletedErr  = errors.New("environment already completed")
	UserNotFoundErr      = errors.New("user not found")
	RetriesExhaustedErr  = errors.New("reconnect retries exhausted")
)
