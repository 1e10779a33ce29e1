package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-club/internal/account"
	"github.com/DoyleJ11/dungeon-club/internal/asset"
	"github.com/DoyleJ11/dungeon-club/internal/mail"
	"github.com/DoyleJ11/dungeon-club/internal/server"
	"github.com/DoyleJ11/dungeon-club/internal/store"
	"github.com/DoyleJ11/dungeon-club/pkg/client"
	"github.com/DoyleJ11/dungeon-club/pkg/client/state"
	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

const waitFor = 2 * time.Second

type fixture struct {
	s          *server.Server
	srv        *httptest.Server
	campaignID string
	ownerToken string
	otherToken string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	st, err := store.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	m, err := mail.New(mail.Config{Service: "log"}, log)
	require.NoError(t, err)

	s := server.New(ctx, server.Deps{
		Store:  st,
		Tokens: account.NewTokens("test-secret", time.Hour),
		Assets: asset.NewManager(t.TempDir(), 64, log),
		Mail:   m,
	}, log)
	srv := httptest.NewServer(SetupRoutes(s, log))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	owner, err := s.Accounts.Create(ctx, "dm@example.com", "correct horse")
	require.NoError(t, err)
	other, err := s.Accounts.Create(ctx, "player@example.com", "correct horse")
	require.NoError(t, err)
	c, err := s.Campaigns.Create(ctx, owner.ID, "Waterdeep")
	require.NoError(t, err)

	f := &fixture{s: s, srv: srv, campaignID: c.ID}
	f.ownerToken, err = s.Tokens.Issue(owner.ID)
	require.NoError(t, err)
	f.otherToken, err = s.Tokens.Issue(other.ID)
	require.NoError(t, err)
	return f
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se *client.StatusError
	require.True(t, errors.As(err, &se), "not a status error: %v", err)
	return se.StatusCode
}

func TestHealthz(t *testing.T) {
	f := setup(t)
	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBoards_RequireToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := client.NewREST(f.srv.URL, "").LoadBoard(ctx, f.campaignID, "any")
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	_, err = client.NewREST(f.srv.URL, "garbage").LoadBoard(ctx, f.campaignID, "any")
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
}

func TestCreateBoard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := client.NewREST(f.srv.URL, f.ownerToken)

	_, err := client.NewREST(f.srv.URL, f.otherToken).CreateBoard(ctx, f.campaignID, "image/png", strings.NewReader("png"))
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	_, err = owner.CreateBoard(ctx, "missing", "image/png", strings.NewReader("png"))
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	_, err = owner.CreateBoard(ctx, f.campaignID, "image/png", strings.NewReader(""))
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = owner.CreateBoard(ctx, f.campaignID, "image/png", strings.NewReader(strings.Repeat("x", 65)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusOf(t, err))

	boardID, err := owner.CreateBoard(ctx, f.campaignID, "image/png", strings.NewReader("the sword coast"))
	require.NoError(t, err)

	c, err := f.s.Campaigns.Snippet(ctx, f.campaignID)
	require.NoError(t, err)
	require.NotNil(t, c.SelectedBoard)
	assert.Equal(t, boardID, *c.SelectedBoard)

	// Accounts that neither own nor joined the campaign cannot read it.
	other := client.NewREST(f.srv.URL, f.otherToken)
	_, err = other.LoadBoard(ctx, f.campaignID, boardID)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	b, err := owner.LoadBoard(ctx, f.campaignID, boardID)
	require.NoError(t, err)
	assert.Equal(t, boardID, b.ID)
	assert.Empty(t, b.Tokens)

	status, _ := getAsset(t, f, f.otherToken, b.MapImageID)
	assert.Equal(t, http.StatusForbidden, status)
	status, body := getAsset(t, f, f.ownerToken, b.MapImageID)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "the sword coast", body)

	_, err = owner.LoadBoard(ctx, f.campaignID, "missing")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func getAsset(t *testing.T, f *fixture, token, assetID string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/campaigns/%s/assets/%s", f.srv.URL, f.campaignID, assetID), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestCreateBoard_PublishesToMembers(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	sock, err := client.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http")+"/websocket", client.WithKeepalive(0), client.WithoutReconnect())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sock.Close() })

	acct, err := client.Request(ctx, sock, protocol.Login, protocol.Credentials{Email: "player@example.com", Password: "correct horse"})
	require.NoError(t, err)

	sess := state.NewSession(sock, client.NewREST(f.srv.URL, acct.Token), zap.NewNop())
	t.Cleanup(sess.Close)
	require.NoError(t, sess.Campaign.Join(ctx, f.campaignID))
	_, ok := sess.Board.Get()
	assert.False(t, ok)

	boardID, err := client.NewREST(f.srv.URL, f.ownerToken).CreateBoard(ctx, f.campaignID, "image/png", strings.NewReader("undermountain"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		b, ok := sess.Board.Get()
		return ok && b.ID == boardID
	}, waitFor, 10*time.Millisecond)

	view, ok := sess.State().Get()
	require.True(t, ok)
	require.NotNil(t, view.Campaign.SelectedBoard)
	assert.Equal(t, boardID, *view.Campaign.SelectedBoard)

	// Joined members read the map too; leaving the connection ends that.
	b, _ := sess.Board.Get()
	status, body := getAsset(t, f, acct.Token, b.MapImageID)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "undermountain", body)

	require.NoError(t, sock.Close())
	require.Eventually(t, func() bool {
		status, _ := getAsset(t, f, acct.Token, b.MapImageID)
		return status == http.StatusForbidden
	}, waitFor, 10*time.Millisecond)
}
