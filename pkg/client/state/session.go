package state

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

const loadTimeout = 10 * time.Second

// Session is the client's view of the game it is in. Build one per socket.
type Session struct {
	Campaign *Campaign
	Board    *Board
}

func NewSession(t Transport, loader BoardLoader, log *zap.Logger) *Session {
	board := NewBoard(t, loader, log)
	return &Session{Campaign: NewCampaign(t, board, log), Board: board}
}

// View is a point-in-time picture of the session.
type View struct {
	Campaign *protocol.CampaignSnippet
	Board    *protocol.BoardSnippet
}

// State is a read-only view over both containers. It has a value once a campaign is entered.
func (s *Session) State() Readable[View] {
	return sessionView{s}
}

func (s *Session) Close() {
	s.Campaign.Close()
	s.Board.Close()
}

type sessionView struct{ s *Session }

func (v sessionView) Get() (View, bool) {
	var out View
	c, ok := v.s.Campaign.Get()
	if !ok {
		return out, false
	}
	out.Campaign = &c
	if b, ok := v.s.Board.Get(); ok {
		out.Board = &b
	}
	return out, true
}

func (v sessionView) Subscribe(fn func(View, bool)) func() {
	notify := func() {
		view, ok := v.Get()
		fn(view, ok)
	}
	stopCampaign := v.s.Campaign.Subscribe(func(protocol.CampaignSnippet, bool) { notify() })
	stopBoard := v.s.Board.Subscribe(func(protocol.BoardSnippet, bool) { notify() })
	return func() {
		stopCampaign()
		stopBoard()
	}
}
