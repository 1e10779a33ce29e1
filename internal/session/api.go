package session

import (
	"context"

	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

// The helpers below wrap the inbox protocol for callers that want a plain call.

func send(ctx context.Context, m *Manager, msg Msg) error {
	select {
	case m.inbox <- msg:
		return nil
	case <-m.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, m *Manager, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-m.ctx.Done():
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (m *Manager) Attach(ctx context.Context, connID string, outbox chan<- protocol.Frame) error {
	reply := make(chan error, 1)
	if err := send(ctx, m, Attach{ConnID: connID, Outbox: outbox, Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, m, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func (m *Manager) Bind(ctx context.Context, connID, accountID string) error {
	reply := make(chan error, 1)
	if err := send(ctx, m, Bind{ConnID: connID, AccountID: accountID, Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, m, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func (m *Manager) JoinCampaign(ctx context.Context, connID, campaignID string) error {
	reply := make(chan error, 1)
	if err := send(ctx, m, JoinCampaign{ConnID: connID, CampaignID: campaignID, Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, m, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func (m *Manager) Unbind(ctx context.Context, connID string) error {
	reply := make(chan struct{}, 1)
	if err := send(ctx, m, Unbind{ConnID: connID, Reply: reply}); err != nil {
		return err
	}
	_, err := await(ctx, m, reply)
	return err
}

func (m *Manager) Lookup(ctx context.Context, connID string) (Binding, bool, error) {
	reply := make(chan LookupResult, 1)
	if err := send(ctx, m, Lookup{ConnID: connID, Reply: reply}); err != nil {
		return Binding{}, false, err
	}
	res, err := await(ctx, m, reply)
	if err != nil {
		return Binding{}, false, err
	}
	return res.Binding, res.Found, nil
}

// Forward delivers frame to every connection joined to campaignID except exclude.
func (m *Manager) Forward(ctx context.Context, campaignID string, frame protocol.Frame, exclude string) (int, error) {
	reply := make(chan int, 1)
	if err := send(ctx, m, Forward{CampaignID: campaignID, Frame: frame, Exclude: exclude, Reply: reply}); err != nil {
		return 0, err
	}
	return await(ctx, m, reply)
}

func (m *Manager) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := send(ctx, m, GetView{Reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, m, reply)
}

// IsMember reports whether accountID currently has a connection joined to campaignID.
func (m *Manager) IsMember(ctx context.Context, accountID, campaignID string) (bool, error) {
	reply := make(chan bool, 1)
	if err := send(ctx, m, IsMember{AccountID: accountID, CampaignID: campaignID, Reply: reply}); err != nil {
		return false, err
	}
	return await(ctx, m, reply)
}

// Stop ends the loop; pending callers observe ErrStopped.
func (m *Manager) Stop() {
	select {
	case m.inbox <- Shutdown{}:
	case <-m.ctx.Done():
	}
}
