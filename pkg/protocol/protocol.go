// Package protocol is the message catalog shared by the server and the Go client.
//
// Every kind is declared once in this package with one of three shapes:
//
//	DefinePrivateRequest            request/response, caller must be authorized
//	DefineRequestWithPublicResponse request/response, response is also pushed to the campaign
//	DefineSendAndForward            fire-and-forget, relayed verbatim to the campaign
//
// Payload and response types are plain structs; their JSON field names are the wire names.
package protocol

import (
	"fmt"
	"sort"
	"sync"
)

type Shape string

const (
	ShapePrivate        Shape = "private"
	ShapePublicResponse Shape = "publicResponse"
	ShapeForward        Shape = "forward"
)

// Descriptor is the untyped view of a catalog entry.
type Descriptor struct {
	Name      string
	Shape     Shape
	Anonymous bool
}

// Request describes a request/response kind with payload P and response R.
type Request[P, R any] struct {
	d Descriptor
}

func (k Request[P, R]) Name() string           { return k.d.Name }
func (k Request[P, R]) Public() bool           { return k.d.Shape == ShapePublicResponse }
func (k Request[P, R]) Descriptor() Descriptor { return k.d }

// Forward describes a fire-and-forget kind with payload P.
type Forward[P any] struct {
	d Descriptor
}

func (k Forward[P]) Name() string           { return k.d.Name }
func (k Forward[P]) Descriptor() Descriptor { return k.d }

// Option adjusts a request descriptor at definition time.
type Option func(*Descriptor)

// Anonymous lets the request run on a connection with no bound account.
func Anonymous() Option {
	return func(d *Descriptor) { d.Anonymous = true }
}

var (
	catalogMu sync.Mutex
	catalog   = map[string]Descriptor{}
)

func define(d Descriptor) Descriptor {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	if d.Name == "" {
		panic("protocol: empty kind name")
	}
	if _, dup := catalog[d.Name]; dup {
		panic(fmt.Sprintf("protocol: kind %q defined twice", d.Name))
	}
	catalog[d.Name] = d
	return d
}

func DefinePrivateRequest[P, R any](name string, opts ...Option) Request[P, R] {
	d := Descriptor{Name: name, Shape: ShapePrivate}
	for _, opt := range opts {
		opt(&d)
	}
	return Request[P, R]{d: define(d)}
}

func DefineRequestWithPublicResponse[P, R any](name string, opts ...Option) Request[P, R] {
	d := Descriptor{Name: name, Shape: ShapePublicResponse}
	for _, opt := range opts {
		opt(&d)
	}
	return Request[P, R]{d: define(d)}
}

func DefineSendAndForward[P any](name string) Forward[P] {
	return Forward[P]{d: define(Descriptor{Name: name, Shape: ShapeForward})}
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (Descriptor, bool) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	d, ok := catalog[name]
	return d, ok
}

// Kinds lists the catalog sorted by name.
func Kinds() []Descriptor {
	catalogMu.Lock()
	out := make([]Descriptor, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, d)
	}
	catalogMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
