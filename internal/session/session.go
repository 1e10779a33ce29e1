package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrStopped           = errors.New("session manager stopped")
)

// Msg is the sealed set of messages the manager loop accepts.
type Msg interface{ isSessionMsg() }

type Attach struct {
	ConnID string
	Outbox chan<- protocol.Frame
	Reply  chan error
}

type Bind struct {
	ConnID    string
	AccountID string
	Reply     chan error
}

type JoinCampaign struct {
	ConnID     string
	CampaignID string
	Reply      chan error
}

type Unbind struct {
	ConnID string
	Reply  chan struct{}
}

type Lookup struct {
	ConnID string
	Reply  chan LookupResult
}

type LookupResult struct {
	Binding Binding
	Found   bool
}

type Forward struct {
	CampaignID string
	Frame      protocol.Frame
	Exclude    string
	Reply      chan int // delivered count; may be nil
}

type GetView struct {
	Reply chan View
}

// IsMember asks whether any connection of AccountID is joined to CampaignID.
type IsMember struct {
	AccountID  string
	CampaignID string
	Reply      chan bool
}

type Shutdown struct{}

func (Attach) isSessionMsg()       {}
func (Bind) isSessionMsg()         {}
func (JoinCampaign) isSessionMsg() {}
func (Unbind) isSessionMsg()       {}
func (Lookup) isSessionMsg()       {}
func (Forward) isSessionMsg()      {}
func (GetView) isSessionMsg()      {}
func (IsMember) isSessionMsg()     {}
func (Shutdown) isSessionMsg()     {}

// Binding is the connection-scoped session: zero-or-one account, zero-or-one campaign.
type Binding struct {
	ConnID     string
	AccountID  string
	CampaignID string
}

// View is a consistent snapshot of the registry, read on the loop.
type View struct {
	Connections int
	Members     map[string]int // campaignID -> joined connections
}

type entry struct {
	binding Binding
	outbox  chan<- protocol.Frame
}

// Manager owns every connection binding. All state lives on the loop goroutine.
type Manager struct {
	inbox   chan Msg
	entries map[string]*entry
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewManager(parent context.Context, log *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(parent)

	m := &Manager{
		inbox:   make(chan Msg, 64),
		entries: make(map[string]*entry),
		log:     log.Named("session"),
		ctx:     ctx,
		cancel:  cancel,
	}

	go m.loop()
	return m
}

func (m *Manager) Inbox() chan<- Msg { return m.inbox }

func (m *Manager) Done() <-chan struct{} { return m.ctx.Done() }

func (m *Manager) loop() {
	for {
		select {
		case <-m.ctx.Done():
			clear(m.entries)
			return

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case Attach:
				// Re-attaching keeps nothing from a previous binding.
				m.entries[msg.ConnID] = &entry{binding: Binding{ConnID: msg.ConnID}, outbox: msg.Outbox}
				msg.Reply <- nil

			case Bind:
				e, ok := m.entries[msg.ConnID]
				if !ok {
					msg.Reply <- ErrUnknownConnection
					break
				}
				if e.binding.AccountID != msg.AccountID {
					// A different account never inherits the previous membership.
					e.binding.CampaignID = ""
				}
				e.binding.AccountID = msg.AccountID
				msg.Reply <- nil

			case JoinCampaign:
				e, ok := m.entries[msg.ConnID]
				if !ok {
					msg.Reply <- ErrUnknownConnection
					break
				}
				if e.binding.AccountID == "" {
					msg.Reply <- protocol.AuthorizationError("login required before joining a campaign")
					break
				}
				e.binding.CampaignID = msg.CampaignID
				msg.Reply <- nil

			case Unbind:
				delete(m.entries, msg.ConnID)
				if msg.Reply != nil {
					msg.Reply <- struct{}{}
				}

			case Lookup:
				e, ok := m.entries[msg.ConnID]
				if !ok {
					msg.Reply <- LookupResult{}
					break
				}
				msg.Reply <- LookupResult{Binding: e.binding, Found: true}

			case Forward:
				n := m.forward(msg)
				if msg.Reply != nil {
					msg.Reply <- n
				}

			case GetView:
				msg.Reply <- m.view()

			case IsMember:
				msg.Reply <- m.isMember(msg.AccountID, msg.CampaignID)

			case Shutdown:
				clear(m.entries)
				m.cancel()
				return
			}
		}
	}
}

// forward is best-effort: a full outbox loses this frame for that recipient only.
func (m *Manager) forward(msg Forward) int {
	if msg.CampaignID == "" {
		return 0
	}
	delivered := 0
	for id, e := range m.entries {
		if id == msg.Exclude || e.binding.CampaignID != msg.CampaignID {
			continue
		}
		select {
		case e.outbox <- msg.Frame:
			delivered++
		default:
			m.log.Warn("dropping frame for slow connection",
				zap.String("conn", id),
				zap.String("kind", msg.Frame.Kind),
				zap.String("campaign", msg.CampaignID))
		}
	}
	return delivered
}

func (m *Manager) isMember(accountID, campaignID string) bool {
	if accountID == "" || campaignID == "" {
		return false
	}
	for _, e := range m.entries {
		if e.binding.AccountID == accountID && e.binding.CampaignID == campaignID {
			return true
		}
	}
	return false
}

func (m *Manager) view() View {
	v := View{Connections: len(m.entries), Members: map[string]int{}}
	for _, e := range m.entries {
		if e.binding.CampaignID != "" {
			v.Members[e.binding.CampaignID]++
		}
	}
	return v
}
