package mail

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testSMTPServer is a minimal relay on a random local port. Unlike a one-shot
// listener it accepts any number of connections so pooling can be observed.
type testSMTPServer struct {
	ln          net.Listener
	port        int
	connections atomic.Int32

	// greetingDelay holds back the 220 banner on every connection.
	greetingDelay time.Duration

	mu       sync.Mutex
	messages []string
}

func startTestSMTPServer(t *testing.T) *testSMTPServer {
	t.Helper()
	return startSlowTestSMTPServer(t, 0)
}

func startSlowTestSMTPServer(t *testing.T, greetingDelay time.Duration) *testSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := &testSMTPServer{ln: ln, port: ln.Addr().(*net.TCPAddr).Port, greetingDelay: greetingDelay}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.connections.Add(1)
			go s.serve(conn)
		}
	}()

	t.Cleanup(s.stop)
	return s
}

func (s *testSMTPServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	if s.greetingDelay > 0 {
		time.Sleep(s.greetingDelay)
	}
	fmt.Fprintf(conn, "220 localhost Test SMTP Service Ready\r\n")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
			fmt.Fprintf(conn, "250-localhost Hello\r\n250 OK\r\n")
		case strings.HasPrefix(line, "DATA"):
			fmt.Fprintf(conn, "354 End data with <CR><LF>.<CR><LF>\r\n")
			var body strings.Builder
			for {
				dline, derr := r.ReadString('\n')
				if derr != nil {
					return
				}
				if strings.TrimSpace(dline) == "." {
					break
				}
				body.WriteString(dline)
			}
			s.mu.Lock()
			s.messages = append(s.messages, body.String())
			s.mu.Unlock()
			fmt.Fprintf(conn, "250 OK: queued\r\n")
		case strings.HasPrefix(line, "QUIT"):
			fmt.Fprintf(conn, "221 Bye\r\n")
			return
		default:
			// MAIL FROM, RCPT TO, RSET, NOOP
			fmt.Fprintf(conn, "250 OK\r\n")
		}
	}
}

func (s *testSMTPServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func (s *testSMTPServer) stop() {
	_ = s.ln.Close()
}
