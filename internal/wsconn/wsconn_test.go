package wsconn

import (
	"net"
	"testing"
	"time"

	"github.com/wireserv/wireserv/internal/wsframe"
)

func readFrame(t *testing.T, conn net.Conn) *wsframe.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	f, _, err := wsframe.Parse(buf[:n], 0)
	if err != nil {
		t.Fatalf("parsing frame: %v", err)
	}
	return f
}

func writeClientFrame(t *testing.T, conn net.Conn, f *wsframe.Frame) {
	t.Helper()
	if _, err := conn.Write(wsframe.Serialize(f)); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}

func TestConnDeliversTextMessage(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	received := make(chan string, 1)
	c := New(server, nil, Handlers{
		OnText: func(c *Conn, message string) { received <- message },
	}, 0, ThrottleConfig{})

	done := make(chan struct{})
	go func() { c.Serve(); close(done) }()

	writeClientFrame(t, client, &wsframe.Frame{Fin: true, OpCode: wsframe.OpText, Payload: []byte("hi")})

	select {
	case msg := <-received:
		if msg != "hi" {
			t.Errorf("OnText message = %q, want hi", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnText was never called")
	}

	client.Close()
	<-done
}

func TestConnDeliversBinaryMessage(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	received := make(chan []byte, 1)
	c := New(server, nil, Handlers{
		OnBinary: func(c *Conn, message []byte) { received <- message },
	}, 0, ThrottleConfig{})

	done := make(chan struct{})
	go func() { c.Serve(); close(done) }()

	writeClientFrame(t, client, &wsframe.Frame{Fin: true, OpCode: wsframe.OpBinary, Payload: []byte{1, 2, 3}})

	select {
	case msg := <-received:
		if string(msg) != "\x01\x02\x03" {
			t.Errorf("OnBinary message = %v, want [1 2 3]", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnBinary was never called")
	}

	client.Close()
	<-done
}

func TestConnReassemblesFragmentedMessage(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	received := make(chan string, 1)
	c := New(server, nil, Handlers{
		OnText: func(c *Conn, message string) { received <- message },
	}, 0, ThrottleConfig{})

	done := make(chan struct{})
	go func() { c.Serve(); close(done) }()

	writeClientFrame(t, client, &wsframe.Frame{Fin: false, OpCode: wsframe.OpText, Payload: []byte("hel")})
	writeClientFrame(t, client, &wsframe.Frame{Fin: false, OpCode: wsframe.OpContinuation, Payload: []byte("lo ")})
	writeClientFrame(t, client, &wsframe.Frame{Fin: true, OpCode: wsframe.OpContinuation, Payload: []byte("world")})

	select {
	case msg := <-received:
		if msg != "hello world" {
			t.Errorf("reassembled message = %q, want %q", msg, "hello world")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnText was never called for the reassembled message")
	}

	client.Close()
	<-done
}

func TestConnContinuationWithoutFragmentStartFails(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	errCh := make(chan error, 1)
	c := New(server, nil, Handlers{
		OnError: func(c *Conn, err error) { errCh <- err },
	}, 0, ThrottleConfig{})

	done := make(chan struct{})
	go func() { c.Serve(); close(done) }()

	writeClientFrame(t, client, &wsframe.Frame{Fin: true, OpCode: wsframe.OpContinuation, Payload: []byte("x")})

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected a non-nil error for an orphan continuation frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError was never called")
	}

	// fail() sends a 1002 close frame before Serve returns; over net.Pipe
	// that write completes only once the client reads it.
	readFrame(t, client)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after a protocol error")
	}
}

func TestConnRespondsToPingWithPong(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := New(server, nil, Handlers{}, 0, ThrottleConfig{})
	done := make(chan struct{})
	go func() { c.Serve(); close(done) }()

	writeClientFrame(t, client, &wsframe.Frame{Fin: true, OpCode: wsframe.OpPing, Payload: []byte("p")})

	f := readFrame(t, client)
	if f.OpCode != wsframe.OpPong {
		t.Errorf("opcode = %v, want OpPong", f.OpCode)
	}
	if string(f.Payload) != "p" {
		t.Errorf("pong payload = %q, want p (echoed ping payload)", f.Payload)
	}

	client.Close()
	<-done
}

func TestConnCloseHandshakeEchoesCodeAndInvokesOnClose(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	closed := make(chan struct{}, 1)
	var gotCode uint16
	var gotReason string
	c := New(server, nil, Handlers{
		OnClose: func(c *Conn, code uint16, reason string) {
			gotCode = code
			gotReason = reason
			closed <- struct{}{}
		},
	}, 0, ThrottleConfig{})

	done := make(chan struct{})
	go func() { c.Serve(); close(done) }()

	payload := append(encodeCloseCode(1000), []byte("bye")...)
	writeClientFrame(t, client, &wsframe.Frame{Fin: true, OpCode: wsframe.OpClose, Payload: payload})

	f := readFrame(t, client)
	if f.OpCode != wsframe.OpClose {
		t.Errorf("opcode = %v, want OpClose (echoed close)", f.OpCode)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose was never called")
	}
	if gotCode != 1000 {
		t.Errorf("close code = %d, want 1000", gotCode)
	}
	if gotReason != "bye" {
		t.Errorf("close reason = %q, want bye", gotReason)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the close handshake")
	}
	if c.State() != StateClosed {
		t.Errorf("State() = %v, want StateClosed", c.State())
	}
}

func TestConnSendTextWritesUnmaskedFrame(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := New(server, nil, Handlers{}, 0, ThrottleConfig{})

	go c.SendText([]byte("server says hi"))

	f := readFrame(t, client)
	if f.OpCode != wsframe.OpText {
		t.Errorf("opcode = %v, want OpText", f.OpCode)
	}
	if f.Masked {
		t.Error("server-to-client frames must not be masked per RFC 6455 §5.1")
	}
	if string(f.Payload) != "server says hi" {
		t.Errorf("payload = %q, want %q", f.Payload, "server says hi")
	}
}

func TestConnThrottleDeniesBurstAndClosesWithPolicyViolation(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	closed := make(chan uint16, 1)
	c := New(server, nil, Handlers{
		OnClose: func(c *Conn, code uint16, reason string) { closed <- code },
	}, 0, ThrottleConfig{Enabled: true, MessagesPerSecond: 1, Burst: 1})

	done := make(chan struct{})
	go func() { c.Serve(); close(done) }()

	writeClientFrame(t, client, &wsframe.Frame{Fin: true, OpCode: wsframe.OpText, Payload: []byte("a")})
	writeClientFrame(t, client, &wsframe.Frame{Fin: true, OpCode: wsframe.OpText, Payload: []byte("b")})

	f := readFrame(t, client)
	if f.OpCode != wsframe.OpClose {
		t.Fatalf("opcode = %v, want OpClose once the throttle denies the second message", f.OpCode)
	}
	code, _ := parseCloseFrame(f.Payload)
	if code != 1008 {
		t.Errorf("close code = %d, want 1008 (policy violation)", code)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the throttle closed the connection")
	}
}

func TestConnCloseSchedulesSocketCloseAfter100ms(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := New(server, nil, Handlers{}, 0, ThrottleConfig{})
	done := make(chan struct{})
	go func() { c.Serve(); close(done) }()

	closeErr := make(chan error, 1)
	go func() { closeErr <- c.Close(1000, "bye") }()

	readFrame(t, client) // drain the close frame Close() writes

	if err := <-closeErr; err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	// Serve is parked in a 60-second-deadline Read with nothing else to
	// wake it; it should only return this quickly because Close scheduled
	// the socket to close 100ms after the close frame was sent.
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Serve did not return within 500ms of Close despite the 100ms socket-close timer")
	}
}

func TestNewDefaultsMaxFrameWhenNonPositive(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := New(server, nil, Handlers{}, 0, ThrottleConfig{})
	if c.maxFrame != defaultMaxFrame {
		t.Errorf("maxFrame = %d, want the default %d", c.maxFrame, defaultMaxFrame)
	}
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	server1, client1 := net.Pipe()
	defer server1.Close()
	defer client1.Close()
	server2, client2 := net.Pipe()
	defer server2.Close()
	defer client2.Close()

	c1 := New(server1, nil, Handlers{}, 0, ThrottleConfig{})
	c2 := New(server2, nil, Handlers{}, 0, ThrottleConfig{})
	if c1.ID == "" || c2.ID == "" {
		t.Fatal("expected non-empty IDs")
	}
	if c1.ID == c2.ID {
		t.Error("expected distinct connections to get distinct IDs")
	}
}

func TestConnRegistersAndUnregistersFromHub(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	h := NewHub(nil)
	c := New(server, h, Handlers{}, 0, ThrottleConfig{})

	done := make(chan struct{})
	go func() { c.Serve(); close(done) }()

	time.Sleep(50 * time.Millisecond)
	if h.Active() != 1 {
		t.Errorf("Active() = %d while serving, want 1", h.Active())
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the client closed")
	}
	if h.Active() != 0 {
		t.Errorf("Active() = %d after Serve returned, want 0", h.Active())
	}
}
