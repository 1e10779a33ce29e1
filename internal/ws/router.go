package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

// Call is what a handler knows about its caller, captured when the frame was dispatched.
type Call struct {
	ConnID     string
	AccountID  string
	CampaignID string
}

// Account returns the bound account or an authorization error.
func (c *Call) Account() (string, error) {
	if c.AccountID == "" {
		return "", protocol.AuthorizationError("login required")
	}
	return c.AccountID, nil
}

// Campaign returns the joined campaign or an authorization error.
func (c *Call) Campaign() (string, error) {
	if _, err := c.Account(); err != nil {
		return "", err
	}
	if c.CampaignID == "" {
		return "", protocol.AuthorizationError("join a campaign first")
	}
	return c.CampaignID, nil
}

type handlerFunc func(ctx context.Context, call *Call, payload json.RawMessage) (json.RawMessage, error)

type route struct {
	desc   protocol.Descriptor
	handle handlerFunc
}

// Router is the dispatch table, keyed by message kind.
type Router struct {
	routes map[string]route
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]route)}
}

func (r *Router) add(desc protocol.Descriptor, h handlerFunc) {
	if _, dup := r.routes[desc.Name]; dup {
		panic(fmt.Sprintf("ws: handler for %q registered twice", desc.Name))
	}
	r.routes[desc.Name] = route{desc: desc, handle: h}
}

func (r *Router) lookup(kind string) (route, bool) {
	rt, ok := r.routes[kind]
	return rt, ok
}

// Kinds lists the kinds with a registered handler.
func (r *Router) Kinds() []string {
	out := make([]string, 0, len(r.routes))
	for k := range r.routes {
		out = append(out, k)
	}
	return out
}

// HandleRequest registers the handler for a private or public-response kind.
func HandleRequest[P, R any](r *Router, kind protocol.Request[P, R], h func(ctx context.Context, call *Call, payload P) (R, error)) {
	r.add(kind.Descriptor(), func(ctx context.Context, call *Call, raw json.RawMessage) (json.RawMessage, error) {
		p, err := protocol.Decode[P](raw)
		if err != nil {
			return nil, protocol.ValidationError("invalid %s payload", kind.Name())
		}
		res, err := h(ctx, call, p)
		if err != nil {
			return nil, err
		}
		return protocol.Encode(res)
	})
}

// HandleForward registers the validator for a send-and-forward kind. A nil error relays the
// original payload bytes untouched.
func HandleForward[P any](r *Router, kind protocol.Forward[P], h func(ctx context.Context, call *Call, payload P) error) {
	r.add(kind.Descriptor(), func(ctx context.Context, call *Call, raw json.RawMessage) (json.RawMessage, error) {
		p, err := protocol.Decode[P](raw)
		if err != nil {
			return nil, protocol.ValidationError("invalid %s payload", kind.Name())
		}
		if err := h(ctx, call, p); err != nil {
			return nil, err
		}
		return raw, nil
	})
}
