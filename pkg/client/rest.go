package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

// REST talks to the HTTP endpoints that sit next to the websocket.
type REST struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewREST(baseURL, token string) *REST {
	return &REST{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, HTTP: http.DefaultClient}
}

// StatusError is a non-2xx answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

func (r *REST) do(req *http.Request, out any) error {
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func boardsURL(base, campaignID string) string {
	return fmt.Sprintf("%s/api/v1/campaigns/%s/boards", base, url.PathEscape(campaignID))
}

func (r *REST) LoadBoard(ctx context.Context, campaignID, boardID string) (protocol.BoardSnippet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, boardsURL(r.BaseURL, campaignID)+"/"+url.PathEscape(boardID), nil)
	if err != nil {
		return protocol.BoardSnippet{}, fmt.Errorf("client.LoadBoard: %w", err)
	}
	var b protocol.BoardSnippet
	if err := r.do(req, &b); err != nil {
		return protocol.BoardSnippet{}, fmt.Errorf("client.LoadBoard: %w", err)
	}
	return b, nil
}

type CreateBoardResponse struct {
	BoardID string `json:"boardId"`
}

// CreateBoard uploads a map image and creates a board showing it.
func (r *REST) CreateBoard(ctx context.Context, campaignID, contentType string, image io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, boardsURL(r.BaseURL, campaignID), image)
	if err != nil {
		return "", fmt.Errorf("client.CreateBoard: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	var out CreateBoardResponse
	if err := r.do(req, &out); err != nil {
		return "", fmt.Errorf("client.CreateBoard: %w", err)
	}
	return out.BoardID, nil
}
