package client

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

// Request performs a typed request and waits for its response.
func Request[P, R any](ctx context.Context, s *Socket, kind protocol.Request[P, R], payload P) (R, error) {
	var out R
	err := s.Call(ctx, kind.Name(), payload, &out)
	return out, err
}

// Login signs in and keeps the token, so the socket reconnects as the same account.
func Login(ctx context.Context, s *Socket, creds protocol.Credentials) (protocol.AccountResponse, error) {
	return signIn(ctx, s, protocol.Login, creds)
}

func CreateAccount(ctx context.Context, s *Socket, creds protocol.Credentials) (protocol.AccountResponse, error) {
	return signIn(ctx, s, protocol.AccountCreate, creds)
}

func signIn(ctx context.Context, s *Socket, kind protocol.Request[protocol.Credentials, protocol.AccountResponse], creds protocol.Credentials) (protocol.AccountResponse, error) {
	res, err := Request(ctx, s, kind, creds)
	if err != nil {
		return res, err
	}
	s.SetToken(res.Token)
	return res, nil
}

// Send emits a send-and-forward message. Nothing comes back.
func Send[P any](ctx context.Context, s *Socket, kind protocol.Forward[P], payload P) error {
	return s.Send(ctx, kind.Name(), payload)
}

// On subscribes to payloads relayed from other members for a send-and-forward kind.
func On[P any](s *Socket, kind protocol.Forward[P], fn func(P)) (unsubscribe func()) {
	return subscribe(s, kind.Name(), fn)
}

// OnPublic subscribes to the responses other members' requests of kind produce.
func OnPublic[P, R any](s *Socket, kind protocol.Request[P, R], fn func(R)) (unsubscribe func()) {
	return subscribe(s, kind.Name(), fn)
}

func subscribe[T any](s *Socket, kind string, fn func(T)) func() {
	return s.Subscribe(kind, func(raw json.RawMessage) {
		v, err := protocol.Decode[T](raw)
		if err != nil {
			s.log.Warn("dropping undecodable push", zap.String("kind", kind), zap.Error(err))
			return
		}
		fn(v)
	})
}
