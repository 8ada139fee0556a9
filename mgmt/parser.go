package mgmt

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// blockKind distinguishes the two notification blocks that carry an
// environment: a new connection attempt and a client disconnect.
type blockKind int

const (
	blockConnect blockKind = iota
	blockDisconnect
)

// pendingBlock accumulates the environment lines of the currently open
// notification block. Environment lines carry no key of their own; they
// attach to the most recently opened block, so at most one block is open
// at a time.
type pendingBlock struct {
	kind blockKind
	key  ConnectionKey
	env  map[string]string
}

// Parser assembles consecutive control-channel lines into logical blocks and
// emits completed environments and disconnect signals. It is fail-soft: a
// malformed line is logged as a protocol anomaly and discarded, and parsing
// resynchronizes on the next block-start line. The parser is driven from a
// single goroutine so that line order is preserved.
type Parser struct {
	current *pendingBlock

	// onOpen receives the key of a newly declared connection block.
	onOpen func(key ConnectionKey)
	// onComplete receives the finalized environment of a connection block.
	onComplete func(key ConnectionKey, env map[string]string)
	// onDisconnect receives the client id of a disconnect notification.
	onDisconnect func(clientID string)
}

func NewParser(onOpen func(ConnectionKey), onComplete func(ConnectionKey, map[string]string), onDisconnect func(clientID string)) *Parser {
	return &Parser{
		onOpen:       onOpen,
		onComplete:   onComplete,
		onDisconnect: onDisconnect,
	}
}

// Feed consumes one protocol line.
func (p *Parser) Feed(line string) {
	switch {
	case strings.HasPrefix(line, connectPrefix):
		p.openConnect(line)
	case strings.HasPrefix(line, disconnectPrefix):
		p.openDisconnect(line)
	case line == envEndMarker:
		p.endBlock()
	case strings.HasPrefix(line, envPrefix):
		p.envLine(line)
	case strings.HasPrefix(line, clientLinePrefix):
		p.anomaly(line, "unrecognised client notification")
	default:
		// Banner, command replies and other informational traffic.
	}
}

func (p *Parser) openConnect(line string) {
	ids := strings.Split(strings.TrimPrefix(line, connectPrefix), ",")
	if len(ids) != 2 || ids[0] == "" || ids[1] == "" {
		p.anomaly(line, "malformed connect notification")
		return
	}
	if p.current != nil {
		// The daemon opened a new block before ending the previous one.
		// Drop the stale block and resynchronize on this one.
		p.anomaly(line, "connect notification while block open")
	}
	p.current = &pendingBlock{
		kind: blockConnect,
		key:  ConnectionKey{ClientID: ids[0], KeyID: ids[1]},
		env:  make(map[string]string),
	}
	p.onOpen(p.current.key)
}

func (p *Parser) openDisconnect(line string) {
	fields := strings.Split(strings.TrimPrefix(line, disconnectPrefix), ",")
	if len(fields) == 0 || fields[0] == "" {
		p.anomaly(line, "malformed disconnect notification")
		return
	}
	// The disconnect signal is emitted immediately, regardless of phase.
	// The block's own environment lines follow and are consumed and
	// discarded so they cannot corrupt any other open key.
	p.onDisconnect(fields[0])
	p.current = &pendingBlock{kind: blockDisconnect, env: make(map[string]string)}
}

func (p *Parser) envLine(line string) {
	if p.current == nil {
		p.anomaly(line, "environment line without open block")
		return
	}
	kv := strings.SplitN(strings.TrimPrefix(line, envPrefix), "=", 2)
	if len(kv) != 2 || kv[0] == "" {
		p.anomaly(line, "malformed environment line")
		return
	}
	p.current.env[kv[0]] = kv[1]
}

func (p *Parser) endBlock() {
	if p.current == nil {
		p.anomaly(envEndMarker, "end marker without open block")
		return
	}
	block := p.current
	p.current = nil
	if block.kind == blockConnect {
		p.onComplete(block.key, block.env)
	}
}

func (p *Parser) anomaly(line, detail string) {
	log.Warn().
		Err(ProtocolAnomalyErr).
		Str("line", line).
		Str("detail", detail).
		Msg("discarding control channel line")
}
