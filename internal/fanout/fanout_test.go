package fanout

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

type fakeConn struct {
	writes    [][]byte
	writeErr  error
	closed    bool
	writeHits int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writeHits++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestNewBroadcaster_DialsResolvedAddr(t *testing.T) {
	var gotNetwork string
	var gotRaddr *net.UDPAddr
	fc := &fakeConn{}

	resolve := func(network, address string) (*net.UDPAddr, error) {
		return net.ResolveUDPAddr(network, address)
	}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		gotNetwork = network
		gotRaddr = raddr
		return fc, nil
	}

	b, err := newBroadcaster("127.0.0.1:4000", resolve, dial)
	if err != nil {
		t.Fatalf("newBroadcaster() error: %v", err)
	}
	defer b.Close()

	if gotNetwork != "udp" {
		t.Fatalf("network=%q want %q", gotNetwork, "udp")
	}
	if gotRaddr == nil || gotRaddr.Port != 4000 || !gotRaddr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Fatalf("raddr=%v want 127.0.0.1:4000", gotRaddr)
	}
}

func TestNewBroadcaster_ResolveFailure(t *testing.T) {
	resolveErr := errors.New("nope")
	resolve := func(network, address string) (*net.UDPAddr, error) {
		return nil, resolveErr
	}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return &fakeConn{}, nil
	}

	_, err := newBroadcaster("bad:addr", resolve, dial)
	if !errors.Is(err, resolveErr) {
		t.Fatalf("err=%v want %v", err, resolveErr)
	}
}

func TestBroadcaster_Send(t *testing.T) {
	fc := &fakeConn{}
	b := &Broadcaster{dest: "x", conn: fc}

	b.Send(nil)
	b.Send([]byte{})
	if fc.writeHits != 0 {
		t.Fatalf("expected no writes for empty payloads, got %d", fc.writeHits)
	}

	p := []byte("$GPZDA,221320.0,14,11,2023,,*46\r\n")
	b.Send(p)
	if len(fc.writes) != 1 || string(fc.writes[0]) != string(p) {
		t.Fatalf("writes=%q", fc.writes)
	}

	// Socket errors are swallowed, not propagated.
	fc.writeErr = errors.New("network unreachable")
	b.Send(p)
}

func TestTCPServer_WelcomeAndFanout(t *testing.T) {
	srv := NewTCPServer("127.0.0.1:0", []byte("$PVERS,WiFiTrk-NG,0.3.0*00\r\n"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run binds the listener; grab the chosen port through a client
	// retry loop instead of racing the accept loop.
	errc := make(chan error, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	srv.addr = addr
	go func() { errc <- srv.Run(ctx) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	welcome, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if !strings.HasPrefix(welcome, "$PVERS,") {
		t.Fatalf("welcome=%q", welcome)
	}

	for srv.Clients() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	srv.Send([]byte("$GPGLL,4425.6080,N,02606.1500,E,221320.0,A,E*55\r\n"))

	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read sentence: %v", err)
	}
	if !strings.HasPrefix(line, "$GPGLL,") {
		t.Fatalf("line=%q", line)
	}

	cancel()
	select {
	case <-errc:
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not stop on cancel")
	}
}

func TestTCPServer_DropsDeadClients(t *testing.T) {
	srv := NewTCPServer("127.0.0.1:0", nil)

	client, server := net.Pipe()
	srv.add(server)
	if srv.Clients() != 1 {
		t.Fatalf("clients=%d", srv.Clients())
	}

	client.Close()
	// The drain goroutine notices the close.
	for i := 0; i < 100 && srv.Clients() != 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Clients() != 0 {
		t.Fatalf("dead client not dropped")
	}
}
