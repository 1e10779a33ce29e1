// Package client is the Go side of the Dungeon Club websocket protocol: typed requests with
// correlation ids, push subscriptions and automatic reconnection.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

var (
	// ErrConnectionLost rejects every request still pending when the connection drops.
	ErrConnectionLost = errors.New("client: connection lost")
	ErrClosed         = errors.New("client: socket closed")
)

type options struct {
	header       http.Header
	log          *zap.Logger
	keepalive    time.Duration
	writeTimeout time.Duration
	reconnect    bool
	newBackoff   func() *backoff.ExponentialBackOff
}

type Option func(*options)

// WithToken sends the token as a bearer Authorization header on every dial.
func WithToken(token string) Option {
	return func(o *options) { o.header.Set("Authorization", "Bearer "+token) }
}

func WithHeader(key, value string) Option {
	return func(o *options) { o.header.Add(key, value) }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithKeepalive pings the server every d. Zero disables it.
func WithKeepalive(d time.Duration) Option {
	return func(o *options) { o.keepalive = d }
}

func WithBackoff(newBackoff func() *backoff.ExponentialBackOff) Option {
	return func(o *options) { o.newBackoff = newBackoff }
}

// WithoutReconnect leaves the socket disconnected after the first drop.
func WithoutReconnect() Option {
	return func(o *options) { o.reconnect = false }
}

type result struct {
	payload json.RawMessage
	err     error
}

// Socket is one logical connection to the server. It survives reconnects; requests in
// flight when the connection drops fail with ErrConnectionLost.
type Socket struct {
	url  string
	opts options
	log  *zap.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	pending     map[string]chan result
	handlers    map[string]map[uint64]func(json.RawMessage)
	reconnected map[uint64]func()
	nextID      uint64
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to url and keeps the connection alive until Close.
func Dial(ctx context.Context, url string, opts ...Option) (*Socket, error) {
	o := options{
		header:       http.Header{},
		log:          zap.NewNop(),
		keepalive:    20 * time.Second,
		writeTimeout: 5 * time.Second,
		reconnect:    true,
		newBackoff:   backoff.NewExponentialBackOff,
	}
	for _, opt := range opts {
		opt(&o)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		url:         url,
		opts:        o,
		log:         o.log.Named("client"),
		pending:     make(map[string]chan result),
		handlers:    make(map[string]map[uint64]func(json.RawMessage)),
		reconnected: make(map[uint64]func()),
		ctx:         runCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	conn, err := s.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	s.conn = conn
	go s.run(conn)
	return s, nil
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	header := s.opts.header.Clone()
	s.mu.Unlock()
	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("client.Dial: %w", err)
	}
	conn.SetReadLimit(-1)
	return conn, nil
}

func (s *Socket) run(conn *websocket.Conn) {
	defer close(s.done)
	for {
		s.serve(conn)
		s.disconnected()
		if s.stopping() || !s.opts.reconnect {
			return
		}
		if conn = s.redial(); conn == nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		hooks := make([]func(), 0, len(s.reconnected))
		for _, fn := range s.reconnected {
			hooks = append(hooks, fn)
		}
		s.mu.Unlock()
		s.log.Info("reconnected")
		for _, fn := range hooks {
			fn()
		}
	}
}

// serve reads frames until the connection fails.
func (s *Socket) serve(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	defer conn.CloseNow()

	if s.opts.keepalive > 0 {
		go s.keepalive(ctx, conn)
	}
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if !s.stopping() {
				s.log.Info("connection lost", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		s.route(f)
	}
}

func (s *Socket) keepalive(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(s.opts.keepalive)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.opts.keepalive)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.log.Info("keepalive failed", zap.Error(err))
				conn.CloseNow()
				return
			}
		}
	}
}

func (s *Socket) route(f protocol.Frame) {
	if f.IsResponse() {
		s.mu.Lock()
		ch, ok := s.pending[f.RequestID]
		delete(s.pending, f.RequestID)
		s.mu.Unlock()
		if !ok {
			s.log.Debug("discarding stale response", zap.String("requestId", f.RequestID))
			return
		}
		if f.Error != nil {
			ch <- result{err: f.Error}
		} else {
			ch <- result{payload: f.Payload}
		}
		return
	}

	s.mu.Lock()
	fns := make([]func(json.RawMessage), 0, len(s.handlers[f.Kind]))
	for _, fn := range s.handlers[f.Kind] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(f.Payload)
	}
}

func (s *Socket) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.ctx.Err() != nil
}

func (s *Socket) disconnected() {
	s.mu.Lock()
	s.conn = nil
	pending := s.pending
	s.pending = make(map[string]chan result)
	s.mu.Unlock()

	for _, ch := range pending {
		ch <- result{err: ErrConnectionLost}
	}
}

func (s *Socket) redial() *websocket.Conn {
	b := s.opts.newBackoff()
	b.Reset()
	for {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = b.MaxInterval
		}
		select {
		case <-time.After(wait):
		case <-s.ctx.Done():
			return nil
		}
		conn, err := s.dial(s.ctx)
		if err == nil {
			return conn
		}
		s.log.Debug("reconnect failed", zap.Error(err), zap.Duration("waited", wait))
	}
}

func (s *Socket) write(ctx context.Context, conn *websocket.Conn, f protocol.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("client: encode frame: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Socket) current() (*websocket.Conn, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.conn == nil {
		return nil, ErrConnectionLost
	}
	return s.conn, nil
}

// Call sends a request of kind and waits for its response, decoding it into out when out
// is not nil. An error response is returned as a *protocol.Error.
func (s *Socket) Call(ctx context.Context, kind string, payload, out any) error {
	raw, err := protocol.Encode(payload)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	ch := make(chan result, 1)

	s.mu.Lock()
	conn, err := s.current()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.write(ctx, conn, protocol.Frame{Kind: kind, RequestID: id, Payload: raw}); err != nil {
		s.forget(id)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(r.payload, out); err != nil {
			return fmt.Errorf("client: decode %s response: %w", kind, err)
		}
		return nil
	case <-ctx.Done():
		s.forget(id)
		return ctx.Err()
	}
}

// Send writes a frame that expects no response.
func (s *Socket) Send(ctx context.Context, kind string, payload any) error {
	raw, err := protocol.Encode(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn, err := s.current()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.write(ctx, conn, protocol.Frame{Kind: kind, Payload: raw}); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (s *Socket) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// Subscribe calls fn with the payload of every pushed frame of kind. Handlers run on the
// reader goroutine in arrival order and must not wait on Call.
func (s *Socket) Subscribe(kind string, fn func(json.RawMessage)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.handlers[kind] == nil {
		s.handlers[kind] = make(map[uint64]func(json.RawMessage))
	}
	s.handlers[kind][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[kind], id)
	}
}

// SetToken replaces the bearer token sent on later dials. Login and CreateAccount call it.
func (s *Socket) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.header.Set("Authorization", "Bearer "+token)
}

// OnReconnect registers fn to run after every successful reconnect, before frames are read
// again. fn must not wait on Call.
func (s *Socket) OnReconnect(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.reconnected[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.reconnected, id)
	}
}

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close ends the socket for good and waits for its reader to stop.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
			s.log.Debug("close", zap.Error(err))
		}
	}
	s.cancel()
	<-s.done
	return nil
}
