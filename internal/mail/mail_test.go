package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

func TestNew_SelectsService(t *testing.T) {
	log := zap.NewNop()

	cases := []struct {
		cfg  Config
		want any
	}{
		{Config{Service: "log"}, &logService{}},
		{Config{}, &logService{}},
		{Config{Service: "sendgrid", APIKey: "k", From: "a@b.c"}, &sendGridService{}},
		{Config{Service: "resend", APIKey: "k", From: "a@b.c"}, &resendService{}},
		{Config{Service: "smtp", SMTPHost: "mail.local", SMTPPort: 25, From: "a@b.c"}, &smtpService{}},
		{Config{Service: "GMAIL", From: "a@b.c", SMTPUser: "u", SMTPPassword: "p"}, &smtpService{}},
	}
	for _, c := range cases {
		svc, err := New(c.cfg, log)
		require.NoError(t, err, c.cfg.Service)
		assert.IsType(t, c.want, svc, c.cfg.Service)
	}
}

func TestNew_Rejects(t *testing.T) {
	log := zap.NewNop()
	for _, cfg := range []Config{
		{Service: "carrier-pigeon"},
		{Service: "sendgrid"},
		{Service: "resend"},
		{Service: "smtp", From: "a@b.c"},
		{Service: "smtp", SMTPHost: "mail.local", From: "not an address"},
	} {
		_, err := New(cfg, log)
		assert.Error(t, err, cfg.Service)
	}
}

func TestGmailUsesGmailHost(t *testing.T) {
	svc, err := New(Config{Service: "gmail", From: "a@b.c", SMTPHost: "ignored", SMTPPort: 25}, zap.NewNop())
	require.NoError(t, err)
	smtpSvc := svc.(*smtpService)
	assert.Equal(t, "smtp.gmail.com", smtpSvc.host)
	assert.Equal(t, 587, smtpSvc.port)
}

func TestSMTP_SendsMessage(t *testing.T) {
	svc, err := newSMTP(Config{SMTPHost: "mail.local", SMTPPort: 2525, From: "Dungeon Club <dm@example.com>"}, zap.NewNop())
	require.NoError(t, err)

	var got *gomail.Msg
	svc.send = func(_ context.Context, msg *gomail.Msg) error {
		got = msg
		return nil
	}

	require.NoError(t, svc.SendMail(context.Background(), Welcome("bard@example.com")))
	require.NotNil(t, got)

	var buf bytes.Buffer
	_, err = got.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Welcome to Dungeon Club")
	assert.Contains(t, raw, "<dm@example.com>")
	assert.Contains(t, raw, "text/html")

	from := got.GetFromString()
	require.Len(t, from, 1)
	assert.Contains(t, from[0], "dm@example.com")
	assert.Equal(t, []string{"<bard@example.com>"}, got.GetToString())
}

func TestSMTP_PassesContextAndReportsFailure(t *testing.T) {
	svc, err := newSMTP(Config{SMTPHost: "mail.local", SMTPPort: 25, From: "dm@example.com"}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.send = func(ctx context.Context, _ *gomail.Msg) error { return ctx.Err() }

	err = svc.SendMail(ctx, Welcome("rogue@example.com"))
	assert.ErrorIs(t, err, context.Canceled)

	err = svc.SendMail(context.Background(), Welcome("not an address"))
	assert.Error(t, err)
}

func TestWelcome_EscapesRecipient(t *testing.T) {
	opts := Welcome("<script>@example.com")
	assert.NotContains(t, opts.HTMLBody, "<script>")
	assert.Equal(t, "<script>@example.com", opts.Recipient)
}

func TestResend_PostsEmail(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer srv.Close()

	svc := newResend(Config{APIKey: "re_test", From: "dm@example.com"}, zap.NewNop())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	svc.client.BaseURL = base

	require.NoError(t, svc.SendMail(context.Background(), Welcome("monk@example.com")))
	assert.Equal(t, "dm@example.com", got["from"])
	assert.Equal(t, "Welcome to Dungeon Club", got["subject"])
}

func TestSendGrid_ReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := newSendGrid(Config{APIKey: "SG.test", From: "Dungeon Club <dm@example.com>"}, zap.NewNop())
	svc.client.BaseURL = srv.URL + "/v3/mail/send"

	err := svc.SendMail(context.Background(), Welcome("druid@example.com"))
	assert.Error(t, err)
}
