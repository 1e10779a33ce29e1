package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/dungeon-club/internal/session"
	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

const teardownTimeout = 3 * time.Second

// Sessions is the slice of the session manager a connection uses.
type Sessions interface {
	Attach(ctx context.Context, connID string, outbox chan<- protocol.Frame) error
	Bind(ctx context.Context, connID, accountID string) error
	Lookup(ctx context.Context, connID string) (session.Binding, bool, error)
	Forward(ctx context.Context, campaignID string, frame protocol.Frame, exclude string) (int, error)
	Unbind(ctx context.Context, connID string) error
}

// Registry is the active-connections registry.
type Registry interface {
	Remove(id string)
}

type Options struct {
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	OutboxSize      int
	FramesPerSecond float64
	FrameBurst      int
	ReadLimit       int64
	OriginPatterns  []string
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 32
	}
	if o.FrameBurst <= 0 {
		o.FrameBurst = 1
	}
	return o
}

// Conn is the server side of one websocket connection.
type Conn struct {
	id       string
	ws       *websocket.Conn
	router   *Router
	sessions Sessions
	registry Registry
	outbox   chan protocol.Frame
	limiter  *rate.Limiter
	opts     Options
	log      *zap.Logger

	// account is bound on attach when the upgrade request carried a valid token.
	account string

	closing atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// NewConn wraps ws. A nil ws is allowed for driving Dispatch directly.
func NewConn(ws *websocket.Conn, router *Router, sessions Sessions, registry Registry, opts Options, log *zap.Logger) *Conn {
	opts = opts.withDefaults()
	limit := rate.Inf
	if opts.FramesPerSecond > 0 {
		limit = rate.Limit(opts.FramesPerSecond)
	}
	id := uuid.NewString()
	return &Conn{
		id:       id,
		ws:       ws,
		router:   router,
		sessions: sessions,
		registry: registry,
		outbox:   make(chan protocol.Frame, opts.OutboxSize),
		limiter:  rate.NewLimiter(limit, opts.FrameBurst),
		opts:     opts,
		log:      log.Named("conn").With(zap.String("conn", id)),
		done:     make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Outbox is where every frame bound for this client is queued.
func (c *Conn) Outbox() <-chan protocol.Frame { return c.outbox }

// Serve runs the connection until the peer goes away or ctx ends.
func (c *Conn) Serve(ctx context.Context) {
	defer c.Close(websocket.StatusNormalClosure, "bye")

	if err := c.sessions.Attach(ctx, c.id, c.outbox); err != nil {
		c.log.Warn("attach session", zap.Error(err))
		return
	}
	if c.closing.Load() {
		// Closed before attach, so teardown had nothing to release.
		c.detach()
		return
	}
	if c.account != "" {
		if err := c.sessions.Bind(ctx, c.id, c.account); err != nil {
			c.log.Warn("bind session", zap.Error(err))
			return
		}
	}
	if c.opts.ReadLimit > 0 {
		c.ws.SetReadLimit(c.opts.ReadLimit)
	}

	go c.writeLoop()
	if c.opts.PingInterval > 0 {
		go c.heartbeat()
	}

	// Reader loop: frames from one connection are handled strictly in order.
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Debug("peer closed")
			default:
				if !c.closing.Load() {
					c.log.Info("read failed", zap.Error(err))
				}
			}
			return
		}
		if typ != websocket.MessageText {
			c.log.Warn("ignoring non-text frame")
			continue
		}

		if reply := c.Dispatch(ctx, data); reply != nil {
			if !c.enqueue(ctx, *reply) {
				return
			}
		}
	}
}

func (c *Conn) enqueue(ctx context.Context, f protocol.Frame) bool {
	select {
	case c.outbox <- f:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.outbox:
			payload, err := json.Marshal(f)
			if err != nil {
				c.log.Error("encode frame", zap.Error(err), zap.String("kind", f.Kind))
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteTimeout)
			err = c.ws.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				c.log.Info("write failed", zap.Error(err))
				go c.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (c *Conn) heartbeat() {
	t := time.NewTicker(c.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.PingInterval)
			err := c.ws.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Info("ping failed", zap.Error(err))
				c.Close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}
		}
	}
}

// Dispatch handles one incoming frame and returns the frame to send back to this
// connection, if any. It never returns an error: failures become error frames.
func (c *Conn) Dispatch(ctx context.Context, data []byte) *protocol.Frame {
	if c.closing.Load() {
		return nil
	}

	var f protocol.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		// Type errors still fill the fields that did decode.
		if f.RequestID != "" {
			return errorFrame(f.RequestID, protocol.ProtocolError("malformed frame"))
		}
		c.log.Warn("dropping malformed frame", zap.Error(err))
		return nil
	}
	if f.Kind == "" {
		if f.RequestID != "" {
			return errorFrame(f.RequestID, protocol.ProtocolError("frame has no kind"))
		}
		c.log.Warn("dropping frame without kind")
		return nil
	}

	if !c.limiter.Allow() {
		if f.RequestID != "" {
			return errorFrame(f.RequestID, protocol.ProtocolError("rate limit exceeded"))
		}
		c.log.Warn("rate limit exceeded, dropping frame", zap.String("kind", f.Kind))
		return nil
	}

	rt, ok := c.router.lookup(f.Kind)
	if !ok {
		if f.RequestID != "" {
			return errorFrame(f.RequestID, protocol.ProtocolError("unknown kind %q", f.Kind))
		}
		c.log.Warn("dropping frame of unknown kind", zap.String("kind", f.Kind))
		return nil
	}
	if rt.desc.Shape != protocol.ShapeForward && f.RequestID == "" {
		c.log.Warn("dropping request without requestId", zap.String("kind", f.Kind))
		return nil
	}

	binding, _, err := c.sessions.Lookup(ctx, c.id)
	if err != nil {
		return c.fail(f, err)
	}
	call := &Call{ConnID: c.id, AccountID: binding.AccountID, CampaignID: binding.CampaignID}
	if !rt.desc.Anonymous && call.AccountID == "" {
		return c.fail(f, protocol.AuthorizationError("login required"))
	}

	start := time.Now()
	result, err := rt.handle(ctx, call, f.Payload)
	c.log.Debug("handled frame",
		zap.String("kind", f.Kind),
		zap.String("requestId", f.RequestID),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return c.fail(f, err)
	}

	switch rt.desc.Shape {
	case protocol.ShapeForward:
		c.forward(ctx, call, protocol.Frame{Kind: f.Kind, Payload: result})
		return nil
	case protocol.ShapePublicResponse:
		c.forward(ctx, call, protocol.Frame{Kind: f.Kind, Payload: result})
	}
	return &protocol.Frame{RequestID: f.RequestID, Payload: result}
}

func (c *Conn) forward(ctx context.Context, call *Call, push protocol.Frame) {
	if call.CampaignID == "" {
		return
	}
	n, err := c.sessions.Forward(ctx, call.CampaignID, push, c.id)
	if err != nil {
		c.log.Warn("forward failed", zap.String("kind", push.Kind), zap.Error(err))
		return
	}
	c.log.Debug("forwarded", zap.String("kind", push.Kind), zap.Int("recipients", n))
}

func (c *Conn) fail(f protocol.Frame, err error) *protocol.Frame {
	var pe *protocol.Error
	if !errors.As(err, &pe) {
		// Collaborator detail stays here.
		c.log.Error("handler failed", zap.String("kind", f.Kind), zap.Error(err))
		pe = protocol.StorageError()
	}
	if f.RequestID == "" {
		c.log.Info("forward rejected", zap.String("kind", f.Kind), zap.Error(pe))
		return nil
	}
	return errorFrame(f.RequestID, pe)
}

func errorFrame(requestID string, err *protocol.Error) *protocol.Frame {
	return &protocol.Frame{RequestID: requestID, Error: err}
}

// Close tears the connection down once: no dispatch after it starts, the session
// binding is released and the registry forgets the connection. Failures are logged.
func (c *Conn) Close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		c.closing.Store(true)
		close(c.done)

		defer func() {
			if r := recover(); r != nil {
				c.log.Error("panic during teardown", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		var errs error
		errs = multierr.Append(errs, c.sessions.Unbind(ctx, c.id))
		if c.registry != nil {
			c.registry.Remove(c.id)
		}
		if c.ws != nil {
			// Usually already closed by the peer; nothing to report then.
			if err := c.ws.Close(code, reason); err != nil {
				c.log.Debug("close websocket", zap.Error(err))
			}
		}
		if errs != nil {
			c.log.Warn("teardown", zap.Error(errs))
		}
		c.log.Debug("closed", zap.Int("code", int(code)), zap.String("reason", reason))
	})
}

func (c *Conn) detach() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := c.sessions.Unbind(ctx, c.id); err != nil {
		c.log.Warn("detach session", zap.Error(err))
	}
}

// Shutdown closes the connection as part of a server stop.
func (c *Conn) Shutdown(reason string) {
	c.Close(websocket.StatusGoingAway, reason)
}

// Closed reports whether teardown has started.
func (c *Conn) Closed() bool { return c.closing.Load() }
