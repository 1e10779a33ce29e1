package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

// Transport is the part of client.Socket the containers use.
type Transport interface {
	Call(ctx context.Context, kind string, payload, out any) error
	Send(ctx context.Context, kind string, payload any) error
	Subscribe(kind string, fn func(json.RawMessage)) (unsubscribe func())
	OnReconnect(fn func()) (unsubscribe func())
}

type BoardLoader interface {
	LoadBoard(ctx context.Context, campaignID, boardID string) (protocol.BoardSnippet, error)
}

// Board is the board currently on screen.
type Board struct {
	*WithState[protocol.BoardSnippet]

	transport Transport
	loader    BoardLoader
	unsub     []func()
	log       *zap.Logger
}

func NewBoard(t Transport, loader BoardLoader, log *zap.Logger) *Board {
	b := &Board{
		WithState: NewWithState[protocol.BoardSnippet](),
		transport: t,
		loader:    loader,
		log:       log.Named("board"),
	}
	b.unsub = append(b.unsub,
		t.Subscribe(protocol.TokenCreate.Name(), b.onTokenCreate),
		t.Subscribe(protocol.TokenMove.Name(), b.onTokenMove),
	)
	return b
}

func (b *Board) Load(ctx context.Context, campaignID, boardID string) error {
	snippet, err := b.loader.LoadBoard(ctx, campaignID, boardID)
	if err != nil {
		return fmt.Errorf("state.Board.Load: %w", err)
	}
	return b.Set(snippet)
}

func (b *Board) Tokens() *Derived[protocol.BoardSnippet, []protocol.TokenSnippet] {
	return Derive[protocol.BoardSnippet](b, func(s protocol.BoardSnippet) []protocol.TokenSnippet { return s.Tokens })
}

func (b *Board) CreateToken(ctx context.Context, templateID string, pos protocol.Position) (protocol.TokenSnippet, error) {
	var res protocol.TokenCreateResponse
	err := b.transport.Call(ctx, protocol.TokenCreate.Name(), protocol.TokenCreatePayload{TokenDefinition: templateID, Position: pos}, &res)
	if err != nil {
		return protocol.TokenSnippet{}, err
	}
	b.addToken(res.Token)
	return res.Token, nil
}

// MoveToken moves the token locally right away, then tells everyone else.
func (b *Board) MoveToken(ctx context.Context, id string, pos protocol.Position) error {
	b.moveToken(id, pos)
	return b.transport.Send(ctx, protocol.TokenMove.Name(), protocol.TokenMovePayload{ID: id, Position: pos})
}

func (b *Board) onTokenCreate(raw json.RawMessage) {
	res, err := protocol.Decode[protocol.TokenCreateResponse](raw)
	if err != nil {
		b.log.Warn("bad tokenCreate push", zap.Error(err))
		return
	}
	b.addToken(res.Token)
}

func (b *Board) onTokenMove(raw json.RawMessage) {
	p, err := protocol.Decode[protocol.TokenMovePayload](raw)
	if err != nil {
		b.log.Warn("bad tokenMove push", zap.Error(err))
		return
	}
	b.moveToken(p.ID, p.Position)
}

// Token slices are copied, never edited in place, so earlier values handed to subscribers stay intact.

func (b *Board) addToken(t protocol.TokenSnippet) {
	err := b.Update(func(s protocol.BoardSnippet) protocol.BoardSnippet {
		if slices.ContainsFunc(s.Tokens, func(x protocol.TokenSnippet) bool { return x.ID == t.ID }) {
			return s
		}
		s.Tokens = append(slices.Clone(s.Tokens), t)
		return s
	})
	if err != nil && !errors.Is(err, ErrNoValue) {
		b.log.Warn("add token", zap.Error(err))
	}
}

func (b *Board) moveToken(id string, pos protocol.Position) {
	_ = b.Update(func(s protocol.BoardSnippet) protocol.BoardSnippet {
		i := slices.IndexFunc(s.Tokens, func(x protocol.TokenSnippet) bool { return x.ID == id })
		if i < 0 {
			return s
		}
		s.Tokens = slices.Clone(s.Tokens)
		s.Tokens[i].Position = pos
		return s
	})
}

func (b *Board) Close() {
	for _, fn := range b.unsub {
		fn()
	}
	b.unsub = nil
}
