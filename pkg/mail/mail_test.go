package mail

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, m *SMTPMailer, msg Message) string {
	t.Helper()
	out, err := m.Build(msg)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = out.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestBuild(t *testing.T) {
	m := NewSMTPMailer(Config{Server: "smtp.example.org", User: "gateway@example.org"})

	t.Run("explicit sender name", func(t *testing.T) {
		raw := render(t, m, Message{Subject: "Hello", Body: "line one", To: "ops@example.org", SenderName: "Alice"})
		assert.Contains(t, raw, `From: "Alice" <gateway@example.org>`)
		assert.Contains(t, raw, "ops@example.org")
		assert.Contains(t, raw, "Subject: Hello")
		assert.Contains(t, raw, "line one")
	})

	t.Run("default sender name", func(t *testing.T) {
		raw := render(t, m, Message{Subject: "x", Body: "y", To: "ops@example.org"})
		assert.Contains(t, raw, `From: "Mesh-Service" <gateway@example.org>`)
	})

	t.Run("non ascii subject is encoded", func(t *testing.T) {
		raw := render(t, m, Message{Subject: "Grüße", Body: "y", To: "ops@example.org"})
		assert.Contains(t, strings.ToLower(raw), "subject: =?utf-8?q?")
	})

	t.Run("invalid recipient", func(t *testing.T) {
		_, err := m.Build(Message{Subject: "x", Body: "y", To: "not an address"})
		assert.ErrorContains(t, err, "invalid recipient")
	})
}

func TestSendWithoutServer(t *testing.T) {
	m := NewSMTPMailer(Config{})
	err := m.Send(context.Background(), Message{To: "x@example.org"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

// smtpServer is a minimal plain SMTP endpoint without STARTTLS or AUTH.
type smtpServer struct {
	ln net.Listener

	mu   sync.Mutex
	from string
	rcpt []string
	data string
}

func newSMTPServer(t *testing.T) *smtpServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &smtpServer{ln: ln}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *smtpServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *smtpServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *smtpServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	reply("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250-localhost")
			reply("250 8BITMIME")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			s.mu.Lock()
			s.from = line[len("MAIL FROM:"):]
			s.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, line[len("RCPT TO:"):])
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			s.mu.Lock()
			s.data = body.String()
			s.mu.Unlock()
			reply("250 OK queued")
		case cmd == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func TestSendOverSMTP(t *testing.T) {
	srv := newSMTPServer(t)
	m := NewSMTPMailer(Config{
		Server:  "127.0.0.1",
		Port:    srv.port(),
		User:    "gateway@example.org",
		Timeout: 5 * time.Second,
	})

	err := m.Send(context.Background(), Message{
		Subject:    "Radar alert from garage",
		Body:       "garage motion",
		To:         "ops@example.org",
		SenderName: "Mesh-Service",
	})
	require.NoError(t, err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Contains(t, srv.from, "gateway@example.org")
	require.Len(t, srv.rcpt, 1)
	assert.Contains(t, srv.rcpt[0], "ops@example.org")
	assert.Contains(t, srv.data, "Subject: Radar alert from garage")
	assert.Contains(t, srv.data, "garage motion")
}

func TestSendConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := NewSMTPMailer(Config{Server: "127.0.0.1", Port: port, User: "gateway@example.org", Timeout: time.Second})
	err = m.Send(context.Background(), Message{Subject: "x", Body: "y", To: "ops@example.org"})
	assert.ErrorContains(t, err, "send mail to ops@example.org")
}
