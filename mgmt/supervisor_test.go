package mgmt_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/jrsteele09/go-vpn-auth-service/mgmt"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeDaemon plays the tunnel daemon's side of an in-memory control channel.
type fakeDaemon struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (d *fakeDaemon) expectLine(t *testing.T, want string) {
	t.Helper()
	require.NoError(t, d.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := d.reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, want+"\n", line)
}

func (d *fakeDaemon) expectSilence(t *testing.T) {
	t.Helper()
	require.NoError(t, d.conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err := d.reader.ReadString('\n')
	require.Error(t, err)
}

func (d *fakeDaemon) sendLines(t *testing.T, lines ...string) {
	t.Helper()
	for _, line := range lines {
		require.NoError(t, d.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
		_, err := d.conn.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
}

// startSupervisor wires a supervisor to an in-memory pipe and returns the
// daemon half. The returned stop function shuts the supervisor down and
// asserts a clean exit.
func startSupervisor(t *testing.T, cfg mgmt.Config) (*fakeDaemon, func()) {
	t.Helper()

	conns := make(chan net.Conn, 4)
	ours, theirs := net.Pipe()
	conns <- ours
	daemon := &fakeDaemon{conn: theirs, reader: bufio.NewReader(theirs)}

	directory, verifier, _ := newValidatorFixture()
	supervisor := mgmt.NewSupervisor(cfg, directory, verifier,
		mgmt.WithDialFunc(func(ctx context.Context) (net.Conn, error) {
			select {
			case conn := <-conns:
				return conn, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()

	daemon.expectLine(t, "auth-retry none")

	stop := func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("supervisor did not shut down")
		}
	}
	return daemon, stop
}

func testSupervisorConfig() mgmt.Config {
	return mgmt.Config{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		DrainGrace:     time.Second,
		Workers:        2,
	}
}

func TestSupervisorAcceptFlow(t *testing.T) {
	daemon, stop := startSupervisor(t, testSupervisorConfig())
	defer stop()

	daemon.sendLines(t,
		">CLIENT:CONNECT,7,3",
		">CLIENT:ENV,username=alice",
		">CLIENT:ENV,password=hunter2;445566",
		">CLIENT:ENV,END",
	)
	daemon.expectLine(t, "client-auth-nt 7 3")
}

func TestSupervisorDenyFlow(t *testing.T) {
	daemon, stop := startSupervisor(t, testSupervisorConfig())
	defer stop()

	daemon.sendLines(t,
		">CLIENT:CONNECT,7,3",
		">CLIENT:ENV,username=alice",
		">CLIENT:ENV,password=hunter2;000000",
		">CLIENT:ENV,END",
	)
	daemon.expectLine(t, `client-deny 7 3 "invalid_code"`)
}

func TestSupervisorReplayedBlockAnswersOnce(t *testing.T) {
	daemon, stop := startSupervisor(t, testSupervisorConfig())
	defer stop()

	block := []string{
		">CLIENT:CONNECT,7,3",
		">CLIENT:ENV,username=alice",
		">CLIENT:ENV,password=hunter2;445566",
		">CLIENT:ENV,END",
	}
	daemon.sendLines(t, block...)
	daemon.expectLine(t, "client-auth-nt 7 3")

	// The daemon replays the whole block. The attempt was already answered,
	// so no second directive may be sent.
	daemon.sendLines(t, block...)
	daemon.expectSilence(t)
}

func TestSupervisorDisconnectBeforeEndSendsNothing(t *testing.T) {
	daemon, stop := startSupervisor(t, testSupervisorConfig())
	defer stop()

	daemon.sendLines(t,
		">CLIENT:CONNECT,7,3",
		">CLIENT:ENV,username=alice",
		">CLIENT:DISCONNECT,7",
		">CLIENT:ENV,END",
	)
	daemon.expectSilence(t)

	// The channel itself stays healthy for later attempts.
	daemon.sendLines(t,
		">CLIENT:CONNECT,8,0",
		">CLIENT:ENV,username=bob",
		">CLIENT:ENV,password=swordfish",
		">CLIENT:ENV,END",
	)
	daemon.expectLine(t, "client-auth-nt 8 0")
}

func TestSupervisorDuplicateEndIgnored(t *testing.T) {
	daemon, stop := startSupervisor(t, testSupervisorConfig())
	defer stop()

	daemon.sendLines(t,
		">CLIENT:CONNECT,7,3",
		">CLIENT:ENV,username=bob",
		">CLIENT:ENV,password=swordfish",
		">CLIENT:ENV,END",
		">CLIENT:ENV,END",
	)
	daemon.expectLine(t, "client-auth-nt 7 3")
	daemon.expectSilence(t)
}

func TestSupervisorRetriesExhausted(t *testing.T) {
	cfg := testSupervisorConfig()
	cfg.MaxRetries = 3

	directory, verifier, _ := newValidatorFixture()
	supervisor := mgmt.NewSupervisor(cfg, directory, verifier,
		mgmt.WithDialFunc(func(ctx context.Context) (net.Conn, error) {
			return nil, errors.New("connection refused")
		}),
	)

	err := supervisor.Run(context.Background())
	require.ErrorIs(t, err, mgmt.RetriesExhaustedErr)
	require.Equal(t, mgmt.StateDisconnected, supervisor.State())
}

func TestSupervisorReconnectsAfterTransportLoss(t *testing.T) {
	conns := make(chan net.Conn, 2)
	first, firstPeer := net.Pipe()
	second, secondPeer := net.Pipe()
	conns <- first
	conns <- second

	directory, verifier, _ := newValidatorFixture()
	supervisor := mgmt.NewSupervisor(testSupervisorConfig(), directory, verifier,
		mgmt.WithDialFunc(func(ctx context.Context) (net.Conn, error) {
			select {
			case conn := <-conns:
				return conn, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()

	// First connection dies immediately after the handshake.
	firstDaemon := &fakeDaemon{conn: firstPeer, reader: bufio.NewReader(firstPeer)}
	firstDaemon.expectLine(t, "auth-retry none")
	require.NoError(t, firstPeer.Close())

	// The supervisor reconnects and serves the attempt on the new transport.
	secondDaemon := &fakeDaemon{conn: secondPeer, reader: bufio.NewReader(secondPeer)}
	secondDaemon.expectLine(t, "auth-retry none")
	secondDaemon.sendLines(t,
		">CLIENT:CONNECT,9,1",
		">CLIENT:ENV,username=bob",
		">CLIENT:ENV,password=swordfish",
		">CLIENT:ENV,END",
	)
	secondDaemon.expectLine(t, "client-auth-nt 9 1")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}
