package twofactor

import "github.com/rs/zerolog/log"

// Sender delivers a verification code to a phone number. Outbound SMS
// delivery is out of scope for this service; production deployments plug in
// a gateway-backed implementation.
type Sender interface {
	Send(phoneNumber, message string) error
}

// LogSender is the mock Sender: it writes the message to the log instead of
// sending it.
type LogSender struct{}

var _ Sender = LogSender{}

func (LogSender) Send(phoneNumber, message string) error {
	log.Info().Str("phone_number", phoneNumber).Str("message", message).Msg("SMS delivery (mocked)")
	return nil
}
