package hub

import (
	"context"

	"go.uber.org/zap"
)

// Conn is what the hub needs from a live connection.
type Conn interface {
	ID() string
	// Shutdown closes the connection as part of a server stop.
	Shutdown(reason string)
}

type HubMsg interface{ isHubMsg() }

type AddConn struct {
	Conn  Conn
	Reply chan bool // false when the hub is shutting down
}

type RemoveConn struct {
	ID string
}

type GetConn struct {
	ID    string
	Reply chan Conn
}

type CountConns struct {
	Reply chan int
}

type ShutdownHub struct {
	Reason string
	Done   chan struct{}
}

func (AddConn) isHubMsg()     {}
func (RemoveConn) isHubMsg()  {}
func (GetConn) isHubMsg()     {}
func (CountConns) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Hub is the registry of active connections.
type Hub struct {
	inbox    chan HubMsg
	conns    map[string]Conn
	stopping bool
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		conns:  make(map[string]Conn),
		log:    log.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case AddConn:
				if h.stopping {
					msg.Reply <- false
					break
				}
				h.conns[msg.Conn.ID()] = msg.Conn
				msg.Reply <- true

			case RemoveConn:
				delete(h.conns, msg.ID)

			case GetConn:
				msg.Reply <- h.conns[msg.ID] // May be nil

			case CountConns:
				msg.Reply <- len(h.conns)

			case ShutdownHub:
				h.stopping = true
				conns := make([]Conn, 0, len(h.conns))
				for _, c := range h.conns {
					conns = append(conns, c)
				}
				clear(h.conns)
				h.log.Info("closing connections", zap.Int("count", len(conns)))
				// Closing runs off the loop: teardown sends RemoveConn back to us.
				go func() {
					for _, c := range conns {
						c.Shutdown(msg.Reason)
					}
					h.cancel()
					if msg.Done != nil {
						close(msg.Done)
					}
				}()
			}
		}
	}
}

func (h *Hub) Add(ctx context.Context, c Conn) bool {
	reply := make(chan bool, 1)
	select {
	case h.inbox <- AddConn{Conn: c, Reply: reply}:
	case <-h.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-h.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// Remove never blocks a closing connection once the hub is gone.
func (h *Hub) Remove(id string) {
	select {
	case h.inbox <- RemoveConn{ID: id}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Count(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.inbox <- CountConns{Reply: reply}:
	case <-h.ctx.Done():
		return 0
	case <-ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.ctx.Done():
		return 0
	case <-ctx.Done():
		return 0
	}
}

// Shutdown closes every registered connection and stops the hub.
func (h *Hub) Shutdown(ctx context.Context, reason string) error {
	done := make(chan struct{})
	select {
	case h.inbox <- ShutdownHub{Reason: reason, Done: done}:
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
