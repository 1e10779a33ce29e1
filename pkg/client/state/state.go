// Package state holds client-side reactive containers. A container keeps at most one
// current value and notifies subscribers synchronously whenever it changes.
package state

import (
	"errors"
	"sync"
)

var (
	ErrReadOnly = errors.New("state: view is read-only")
	ErrNoValue  = errors.New("state: no current value")
)

type Readable[T any] interface {
	// Get returns the current value; ok is false when there is none.
	Get() (v T, ok bool)
	// Subscribe calls fn on every change until the returned func is called.
	Subscribe(fn func(v T, ok bool)) (unsubscribe func())
}

type Writable[T any] interface {
	Readable[T]
	Set(v T) error
}

// WithState is the base container. Subscribers must not write to the container they are
// being notified by.
type WithState[T any] struct {
	// notify is held by a writer until its subscribers have run, so changes reach every
	// subscriber in the order they were made.
	notify sync.Mutex
	mu     sync.Mutex
	value  T
	ok     bool
	subs   map[uint64]func(T, bool)
	next   uint64
}

func NewWithState[T any]() *WithState[T] {
	return &WithState[T]{subs: make(map[uint64]func(T, bool))}
}

func (s *WithState[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.ok
}

func (s *WithState[T]) Set(v T) error {
	s.store(v, true)
	return nil
}

func (s *WithState[T]) Clear() {
	var zero T
	s.store(zero, false)
}

// Update replaces the current value with fn applied to it.
func (s *WithState[T]) Update(fn func(T) T) error {
	s.notify.Lock()
	defer s.notify.Unlock()
	s.mu.Lock()
	if !s.ok {
		s.mu.Unlock()
		return ErrNoValue
	}
	v := fn(s.value)
	s.value = v
	subs := s.snapshot()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(v, true)
	}
	return nil
}

func (s *WithState[T]) store(v T, ok bool) {
	s.notify.Lock()
	defer s.notify.Unlock()
	s.mu.Lock()
	s.value, s.ok = v, ok
	subs := s.snapshot()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(v, ok)
	}
}

func (s *WithState[T]) snapshot() []func(T, bool) {
	out := make([]func(T, bool), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func (s *WithState[T]) Subscribe(fn func(T, bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Derived is a projection of another container. It caches nothing: every Get and every
// notification recomputes from the source.
type Derived[S, T any] struct {
	src      Readable[S]
	selector func(S) T
	set      func(T) error
}

func Derive[S, T any](src Readable[S], selector func(S) T) *Derived[S, T] {
	return &Derived[S, T]{src: src, selector: selector}
}

// DeriveWritable is Derive plus an updater that folds a new view value back into the source.
func DeriveWritable[S, T any](src Writable[S], selector func(S) T, updater func(S, T) S) *Derived[S, T] {
	d := Derive[S, T](src, selector)
	d.set = func(v T) error {
		cur, ok := src.Get()
		if !ok {
			return ErrNoValue
		}
		return src.Set(updater(cur, v))
	}
	return d
}

func (d *Derived[S, T]) Get() (T, bool) {
	s, ok := d.src.Get()
	if !ok {
		var zero T
		return zero, false
	}
	return d.selector(s), true
}

func (d *Derived[S, T]) Set(v T) error {
	if d.set == nil {
		return ErrReadOnly
	}
	return d.set(v)
}

func (d *Derived[S, T]) Subscribe(fn func(T, bool)) func() {
	return d.src.Subscribe(func(s S, ok bool) {
		if !ok {
			var zero T
			fn(zero, false)
			return
		}
		fn(d.selector(s), true)
	})
}
