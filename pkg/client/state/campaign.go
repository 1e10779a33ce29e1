package state

import (
	"context"
	"encoding/json"
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

// Campaign is the campaign the client has entered.
type Campaign struct {
	*WithState[protocol.CampaignSnippet]

	transport Transport
	board     *Board
	templates *Derived[protocol.CampaignSnippet, []protocol.TokenTemplateSnippet]
	unsub     []func()
	log       *zap.Logger
}

func NewCampaign(t Transport, board *Board, log *zap.Logger) *Campaign {
	c := &Campaign{
		WithState: NewWithState[protocol.CampaignSnippet](),
		transport: t,
		board:     board,
		log:       log.Named("campaign"),
	}
	c.templates = DeriveWritable[protocol.CampaignSnippet](c.WithState,
		func(s protocol.CampaignSnippet) []protocol.TokenTemplateSnippet { return s.Templates },
		func(s protocol.CampaignSnippet, templates []protocol.TokenTemplateSnippet) protocol.CampaignSnippet {
			s.Templates = templates
			return s
		},
	)
	c.unsub = append(c.unsub,
		t.Subscribe(protocol.BoardSelect.Name(), c.onBoardSelect),
		t.OnReconnect(c.onReconnect),
	)
	return c
}

func (c *Campaign) Join(ctx context.Context, id string) error {
	return c.enter(ctx, protocol.CampaignJoin.Name(), id)
}

// Host is Join for the owner.
func (c *Campaign) Host(ctx context.Context, id string) error {
	return c.enter(ctx, protocol.CampaignHost.Name(), id)
}

func (c *Campaign) enter(ctx context.Context, kind, id string) error {
	var snippet protocol.CampaignSnippet
	if err := c.transport.Call(ctx, kind, protocol.CampaignRef{ID: id}, &snippet); err != nil {
		return err
	}
	return c.OnEnter(ctx, snippet)
}

// OnEnter makes snippet current and loads its selected board, if any.
func (c *Campaign) OnEnter(ctx context.Context, snippet protocol.CampaignSnippet) error {
	_ = c.Set(snippet)
	if snippet.SelectedBoard == nil {
		c.board.Clear()
		return nil
	}
	return c.board.Load(ctx, snippet.ID, *snippet.SelectedBoard)
}

// TokenTemplates is a writable view of the current campaign's templates.
func (c *Campaign) TokenTemplates() Writable[[]protocol.TokenTemplateSnippet] {
	return c.templates
}

func (c *Campaign) SelectBoard(ctx context.Context, boardID string) error {
	var snippet protocol.CampaignSnippet
	if err := c.transport.Call(ctx, protocol.BoardSelect.Name(), protocol.BoardSelectPayload{BoardID: boardID}, &snippet); err != nil {
		return err
	}
	return c.OnEnter(ctx, snippet)
}

func (c *Campaign) CreateTokenTemplate(ctx context.Context, name, avatarID string) (protocol.TokenTemplateSnippet, error) {
	var t protocol.TokenTemplateSnippet
	err := c.transport.Call(ctx, protocol.TokenTemplateCreate.Name(), protocol.TokenTemplateCreatePayload{Name: name, AvatarID: avatarID}, &t)
	if err != nil {
		return t, err
	}
	if cur, ok := c.templates.Get(); ok {
		_ = c.templates.Set(append(slices.Clone(cur), t))
	}
	return t, nil
}

func (c *Campaign) DeleteTokenTemplate(ctx context.Context, id string) error {
	err := c.transport.Call(ctx, protocol.TokenTemplateDelete.Name(), protocol.TokenTemplateDeletePayload{TokenTemplateID: id}, nil)
	if err != nil {
		return err
	}
	if cur, ok := c.templates.Get(); ok {
		_ = c.templates.Set(slices.DeleteFunc(slices.Clone(cur), func(t protocol.TokenTemplateSnippet) bool { return t.ID == id }))
	}
	return nil
}

// Leave forgets the campaign and its board.
func (c *Campaign) Leave() {
	c.Clear()
	c.board.Clear()
}

func (c *Campaign) onBoardSelect(raw json.RawMessage) {
	snippet, err := protocol.Decode[protocol.CampaignSnippet](raw)
	if err != nil {
		c.log.Warn("bad boardSelect push", zap.Error(err))
		return
	}
	if cur, ok := c.Get(); !ok || cur.ID != snippet.ID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	if err := c.OnEnter(ctx, snippet); err != nil {
		c.log.Warn("load selected board", zap.Error(err))
	}
}

// onReconnect joins the current campaign again on the new connection and reloads it, since
// pushes sent while disconnected are gone. It runs before the socket reads again, so the
// request goes out from its own goroutine.
func (c *Campaign) onReconnect() {
	cur, ok := c.Get()
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		if err := c.enter(ctx, protocol.CampaignJoin.Name(), cur.ID); err != nil {
			c.log.Warn("rejoin after reconnect", zap.String("campaign", cur.ID), zap.Error(err))
		}
	}()
}

func (c *Campaign) Close() {
	for _, fn := range c.unsub {
		fn()
	}
	c.unsub = nil
}
