// Package server composes the collaborators of a running Dungeon Club instance and
// registers the handler for every message kind.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-club/internal/account"
	"github.com/DoyleJ11/dungeon-club/internal/asset"
	"github.com/DoyleJ11/dungeon-club/internal/campaign"
	"github.com/DoyleJ11/dungeon-club/internal/hub"
	"github.com/DoyleJ11/dungeon-club/internal/mail"
	"github.com/DoyleJ11/dungeon-club/internal/session"
	"github.com/DoyleJ11/dungeon-club/internal/store"
	"github.com/DoyleJ11/dungeon-club/internal/ws"
	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

const mailTimeout = 30 * time.Second

type Deps struct {
	Store  *store.Store
	Tokens *account.Tokens
	Assets *asset.Manager
	Mail   mail.Service
	WS     ws.Options
}

// Server is constructed once at startup and handed to whatever needs it.
type Server struct {
	Accounts  *account.Manager
	Tokens    *account.Tokens
	Campaigns *campaign.Service
	Assets    *asset.Manager
	Mail      mail.Service
	Sessions  *session.Manager
	Hub       *hub.Hub
	Router    *ws.Router

	wsOpts ws.Options
	log    *zap.Logger

	background sync.WaitGroup
}

func New(ctx context.Context, deps Deps, log *zap.Logger) *Server {
	s := &Server{
		Accounts:  account.NewManager(deps.Store, log),
		Tokens:    deps.Tokens,
		Campaigns: campaign.NewService(deps.Store, log),
		Assets:    deps.Assets,
		Mail:      deps.Mail,
		Sessions:  session.NewManager(ctx, log),
		Hub:       hub.NewHub(ctx, log),
		Router:    ws.NewRouter(),
		wsOpts:    deps.WS,
		log:       log.Named("server"),
	}
	s.registerHandlers()
	return s
}

func (s *Server) WebsocketHandler() http.HandlerFunc {
	return ws.Handler(s.Hub, s.Router, s.Sessions, s.Tokens, s.wsOpts, s.log)
}

// PublishCampaign pushes the current campaign snippet to every joined member as a boardSelect.
func (s *Server) PublishCampaign(ctx context.Context, campaignID string) (int, error) {
	snippet, err := s.Campaigns.Snippet(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	payload, err := protocol.Encode(snippet)
	if err != nil {
		return 0, err
	}
	return s.Sessions.Forward(ctx, campaignID, protocol.Frame{Kind: protocol.BoardSelect.Name(), Payload: payload}, "")
}

func (s *Server) sendWelcome(email string) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()
		if err := s.Mail.SendMail(ctx, mail.Welcome(email)); err != nil {
			s.log.Warn("welcome mail failed", zap.Error(err))
		}
	}()
}

// Shutdown closes every connection with going-away, then stops the session manager and
// waits for outstanding mail.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs error
	errs = multierr.Append(errs, s.Hub.Shutdown(ctx, "server shutting down"))
	s.Sessions.Stop()

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = multierr.Append(errs, ctx.Err())
	}
	return errs
}
