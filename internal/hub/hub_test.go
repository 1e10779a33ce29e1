package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeConn struct {
	id string
	h  *Hub

	mu     sync.Mutex
	reason string
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Shutdown(reason string) {
	c.mu.Lock()
	c.reason = reason
	c.mu.Unlock()
	c.h.Remove(c.id)
}

func (c *fakeConn) closedWith() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func TestHub_Add_Get_SamePointer(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, zap.NewNop())
	c := &fakeConn{id: "conn-1", h: h}

	if !h.Add(ctx, c) {
		t.Fatalf("expected add to succeed")
	}

	reply := make(chan Conn, 1)
	h.Inbox() <- GetConn{ID: "conn-1", Reply: reply}
	got := <-reply
	if got == nil || got != Conn(c) {
		t.Fatalf("expected same connection back, got %v", got)
	}
}

func TestHub_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, zap.NewNop())

	h.Add(ctx, &fakeConn{id: "a", h: h})
	h.Add(ctx, &fakeConn{id: "b", h: h})
	h.Remove("a")
	h.Remove("a")

	if n := h.Count(ctx); n != 1 {
		t.Fatalf("want 1 connection, got %d", n)
	}
}

func TestHub_ShutdownClosesEveryConnection(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, zap.NewNop())

	conns := []*fakeConn{{id: "a", h: h}, {id: "b", h: h}, {id: "c", h: h}}
	for _, c := range conns {
		h.Add(ctx, c)
	}

	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := h.Shutdown(sctx, "server stopping"); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	for _, c := range conns {
		if got := c.closedWith(); got != "server stopping" {
			t.Fatalf("conn %s: want close reason %q, got %q", c.id, "server stopping", got)
		}
	}

	if h.Add(ctx, &fakeConn{id: "late", h: h}) {
		t.Fatalf("expected add after shutdown to be refused")
	}
}
