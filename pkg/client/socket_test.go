package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

type pingPayload struct {
	N int `json:"n"`
}

var (
	testPing  = protocol.DefinePrivateRequest[pingPayload, pingPayload]("clientTestPing")
	testShout = protocol.DefineRequestWithPublicResponse[pingPayload, pingPayload]("clientTestShout")
	testNudge = protocol.DefineSendAndForward[pingPayload]("clientTestNudge")
)

// fakeServer accepts websockets and hands every connection and frame to the test.
type fakeServer struct {
	srv     *httptest.Server
	conns   chan *websocket.Conn
	frames  chan protocol.Frame
	headers chan http.Header
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		conns:   make(chan *websocket.Conn, 8),
		frames:  make(chan protocol.Frame, 64),
		headers: make(chan http.Header, 8),
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		fs.headers <- r.Header.Clone()
		fs.conns <- conn
		for {
			var f protocol.Frame
			if err := wsjson.Read(r.Context(), conn, &f); err != nil {
				return
			}
			fs.frames <- f
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func fastBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	return b
}

func dialTest(t *testing.T, fs *fakeServer, opts ...Option) (*Socket, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	opts = append([]Option{WithBackoff(fastBackoff), WithKeepalive(0)}, opts...)
	s, err := Dial(ctx, fs.url(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, recvConn(t, fs.conns, time.Second)
}

func recvConn(t *testing.T, ch <-chan *websocket.Conn, within time.Duration) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(within):
		t.Fatalf("timed out waiting for connection")
		return nil
	}
}

func recvFrame(t *testing.T, ch <-chan protocol.Frame, within time.Duration) protocol.Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return protocol.Frame{}
	}
}

func reply(t *testing.T, conn *websocket.Conn, f protocol.Frame) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, f))
}

func encode(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := protocol.Encode(v)
	require.NoError(t, err)
	return raw
}

type callResult struct {
	res pingPayload
	err error
}

func requestAsync(s *Socket, n int) <-chan callResult {
	out := make(chan callResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		res, err := Request(ctx, s, testPing, pingPayload{N: n})
		out <- callResult{res, err}
	}()
	return out
}

func recvResult(t *testing.T, ch <-chan callResult) callResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatalf("request never resolved")
		return callResult{}
	}
}

func TestRequest_ResolvesByRequestID(t *testing.T) {
	fs := newFakeServer(t)
	s, conn := dialTest(t, fs)

	first := requestAsync(s, 1)
	second := requestAsync(s, 2)
	a := recvFrame(t, fs.frames, time.Second)
	b := recvFrame(t, fs.frames, time.Second)
	require.NotEqual(t, a.RequestID, b.RequestID)
	assert.Equal(t, testPing.Name(), a.Kind)

	// Answer out of order, doubling n.
	for _, f := range []protocol.Frame{b, a} {
		p, err := protocol.Decode[pingPayload](f.Payload)
		require.NoError(t, err)
		reply(t, conn, protocol.Frame{RequestID: f.RequestID, Payload: encode(t, pingPayload{N: p.N * 2})})
	}

	assert.Equal(t, 2, recvResult(t, first).res.N)
	assert.Equal(t, 4, recvResult(t, second).res.N)
}

func TestRequest_ErrorResponse(t *testing.T) {
	fs := newFakeServer(t)
	s, conn := dialTest(t, fs)

	pending := requestAsync(s, 1)
	f := recvFrame(t, fs.frames, time.Second)
	reply(t, conn, protocol.Frame{RequestID: f.RequestID, Error: protocol.ValidationError("nope")})

	r := recvResult(t, pending)
	code, ok := protocol.CodeOf(r.err)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeValidation, code)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	fs := newFakeServer(t)
	s, conn := dialTest(t, fs)

	pending := requestAsync(s, 1)
	f := recvFrame(t, fs.frames, time.Second)
	reply(t, conn, protocol.Frame{RequestID: "never-issued", Payload: encode(t, pingPayload{N: 99})})
	reply(t, conn, protocol.Frame{RequestID: f.RequestID, Payload: encode(t, pingPayload{N: 7})})

	r := recvResult(t, pending)
	require.NoError(t, r.err)
	assert.Equal(t, 7, r.res.N)
}

func TestPushHandlers(t *testing.T) {
	fs := newFakeServer(t)
	s, conn := dialTest(t, fs)

	nudges := make(chan pingPayload, 4)
	shouts := make(chan pingPayload, 4)
	stop := On(s, testNudge, func(p pingPayload) { nudges <- p })
	OnPublic(s, testShout, func(p pingPayload) { shouts <- p })

	reply(t, conn, protocol.Frame{Kind: testNudge.Name(), Payload: encode(t, pingPayload{N: 1})})
	reply(t, conn, protocol.Frame{Kind: testShout.Name(), Payload: encode(t, pingPayload{N: 2})})

	select {
	case p := <-nudges:
		assert.Equal(t, 1, p.N)
	case <-time.After(time.Second):
		t.Fatal("nudge not delivered")
	}
	select {
	case p := <-shouts:
		assert.Equal(t, 2, p.N)
	case <-time.After(time.Second):
		t.Fatal("shout not delivered")
	}

	stop()
	reply(t, conn, protocol.Frame{Kind: testNudge.Name(), Payload: encode(t, pingPayload{N: 3})})
	reply(t, conn, protocol.Frame{Kind: testShout.Name(), Payload: encode(t, pingPayload{N: 4})})
	select {
	case p := <-shouts:
		assert.Equal(t, 4, p.N)
	case <-time.After(time.Second):
		t.Fatal("shout not delivered")
	}
	assert.Empty(t, nudges, "unsubscribed handler must not run")
}

func TestSend_HasNoRequestID(t *testing.T) {
	fs := newFakeServer(t)
	s, _ := dialTest(t, fs, WithToken("tok-123"))

	assert.Equal(t, "Bearer tok-123", (<-fs.headers).Get("Authorization"))

	require.NoError(t, Send(context.Background(), s, testNudge, pingPayload{N: 5}))
	f := recvFrame(t, fs.frames, time.Second)
	assert.Equal(t, testNudge.Name(), f.Kind)
	assert.Empty(t, f.RequestID)
}

func TestDisconnect_RejectsPendingAndReconnects(t *testing.T) {
	fs := newFakeServer(t)
	s, conn := dialTest(t, fs)

	reconnected := make(chan struct{}, 1)
	s.OnReconnect(func() { reconnected <- struct{}{} })

	pending := requestAsync(s, 1)
	recvFrame(t, fs.frames, time.Second)
	_ = conn.CloseNow()

	r := recvResult(t, pending)
	assert.ErrorIs(t, r.err, ErrConnectionLost)

	conn = recvConn(t, fs.conns, 2*time.Second)
	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect hook did not run")
	}
	require.Eventually(t, s.Connected, time.Second, 10*time.Millisecond)

	next := requestAsync(s, 3)
	f := recvFrame(t, fs.frames, time.Second)
	reply(t, conn, protocol.Frame{RequestID: f.RequestID, Payload: encode(t, pingPayload{N: 3})})
	assert.NoError(t, recvResult(t, next).err)
}

func TestWithoutReconnect_StaysDown(t *testing.T) {
	fs := newFakeServer(t)
	s, conn := dialTest(t, fs, WithoutReconnect())

	_ = conn.CloseNow()
	require.Eventually(t, func() bool { return !s.Connected() }, time.Second, 10*time.Millisecond)

	_, err := Request(context.Background(), s, testPing, pingPayload{})
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestClose(t *testing.T) {
	fs := newFakeServer(t)
	s, _ := dialTest(t, fs)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := Request(context.Background(), s, testPing, pingPayload{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, Send(context.Background(), s, testNudge, pingPayload{}), ErrClosed)
}

func TestRequest_ContextCanceled(t *testing.T) {
	fs := newFakeServer(t)
	s, _ := dialTest(t, fs)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Request(ctx, s, testPing, pingPayload{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDial_Fails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/websocket")
	assert.Error(t, err)
}

func TestLogin_TokenUsedOnReconnect(t *testing.T) {
	fs := newFakeServer(t)
	s, conn := dialTest(t, fs)
	assert.Empty(t, (<-fs.headers).Get("Authorization"))

	done := make(chan error, 1)
	go func() {
		_, err := Login(context.Background(), s, protocol.Credentials{Email: "a@b.c", Password: "pw"})
		done <- err
	}()
	f := recvFrame(t, fs.frames, time.Second)
	assert.Equal(t, protocol.Login.Name(), f.Kind)
	reply(t, conn, protocol.Frame{RequestID: f.RequestID, Payload: encode(t, protocol.AccountResponse{Token: "tok-9"})})
	require.NoError(t, <-done)

	_ = conn.CloseNow()
	recvConn(t, fs.conns, 2*time.Second)
	assert.Equal(t, "Bearer tok-9", (<-fs.headers).Get("Authorization"))
}
