package mgmt

import (
	"bufio"
	"io"
	"strings"
)

// FrameReader splits the raw control-channel byte stream into discrete
// protocol lines, preserving arrival order. Partial reads are buffered until
// a full newline-delimited line is available; a trailing carriage return is
// stripped. A new FrameReader is created per connection, so the sequence
// restarts cleanly on reconnect.
type FrameReader struct {
	r       *bufio.Reader
	pending error // stream error held back until buffered data is delivered
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next returns the next complete line, or an error once the stream ends.
// A final unterminated fragment is still delivered before the stream error:
// the daemon terminates every notification with a newline, so a fragment
// only occurs when the transport is torn down mid-line.
func (fr *FrameReader) Next() (string, error) {
	if fr.pending != nil {
		err := fr.pending
		fr.pending = nil
		return "", err
	}

	line, err := fr.r.ReadString('\n')
	if err != nil {
		if len(line) == 0 {
			return "", err
		}
		fr.pending = err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
