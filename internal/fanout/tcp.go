// Package fanout delivers finished NMEA sentences to subscribers:
// a multi-client TCP server, a UDP broadcaster and a serial port. All
// delivery is best-effort; a slow or dead subscriber never blocks the
// scheduler.
package fanout

import (
	"context"
	"log"
	"net"
	"sync"
	"time"
)

const writeTimeout = 2 * time.Second

// TCPServer fans sentences out to every connected client, the way GPS
// units expose NMEA over TCP. Clients get a welcome sentence on connect
// and are dropped on the first failed write.
type TCPServer struct {
	addr    string
	welcome []byte

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewTCPServer(addr string, welcome []byte) *TCPServer {
	return &TCPServer{
		addr:    addr,
		welcome: welcome,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Run accepts clients until the context is canceled.
func (s *TCPServer) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	log.Printf("fanout: nmea tcp server on %s", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.closeAll()
				return ctx.Err()
			}
			log.Printf("fanout: accept: %v", err)
			continue
		}
		s.add(conn)
	}
}

func (s *TCPServer) add(conn net.Conn) {
	if len(s.welcome) > 0 {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(s.welcome); err != nil {
			conn.Close()
			return
		}
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	n := len(s.conns)
	s.mu.Unlock()
	log.Printf("fanout: client %s connected (%d total)", conn.RemoteAddr(), n)

	// Drain whatever the client sends so the socket notices a close.
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := conn.Read(buf); err != nil {
				s.drop(conn)
				return
			}
		}
	}()
}

func (s *TCPServer) drop(conn net.Conn) {
	s.mu.Lock()
	_, ok := s.conns[conn]
	delete(s.conns, conn)
	s.mu.Unlock()
	if ok {
		conn.Close()
		log.Printf("fanout: client %s disconnected", conn.RemoteAddr())
	}
}

func (s *TCPServer) closeAll() {
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Send writes the sentence to every client, dropping the ones that fail.
func (s *TCPServer) Send(p []byte) {
	if len(p) == 0 {
		return
	}
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := c.Write(p); err != nil {
			s.drop(c)
		}
	}
}

// Clients reports the number of connected subscribers.
func (s *TCPServer) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
