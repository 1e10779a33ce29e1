package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-club/internal/asset"
	"github.com/DoyleJ11/dungeon-club/internal/campaign"
	"github.com/DoyleJ11/dungeon-club/internal/server"
)

type ctxKey struct{}

// authorizedEndpoint admits requests carrying a valid bearer token and stores the account id
// in the request context.
func authorizedEndpoint(s *server.Server, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			accountID, err := s.Tokens.Verify(raw)
			if err != nil {
				log.Debug("rejected token", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, accountID)))
		})
	}
}

func accountFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type createBoardResponse struct {
	BoardID string `json:"boardId"`
}

// CreateBoard stores the request body as a map image and creates a board showing it.
func CreateBoard(s *server.Server, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID := accountFrom(ctx)
		campaignID := chi.URLParam(r, "campaignId")

		owner, err := s.Campaigns.IsOwner(ctx, accountID, campaignID)
		if err != nil {
			fail(w, log, err)
			return
		}
		if !owner {
			fail(w, log, campaign.ErrForbidden)
			return
		}

		a, err := s.Assets.UploadAsset(ctx, campaignID, r.Body)
		switch {
		case errors.Is(err, asset.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		case errors.Is(err, asset.ErrEmpty):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			fail(w, log, err)
			return
		}

		board, selected, err := s.Campaigns.AddBoard(ctx, accountID, campaignID, a.ID)
		if err != nil {
			if rerr := s.Assets.Remove(campaignID, a.ID); rerr != nil {
				log.Warn("remove orphaned asset", zap.Error(rerr))
			}
			fail(w, log, err)
			return
		}
		if selected {
			n, err := s.PublishCampaign(ctx, campaignID)
			if err != nil {
				log.Warn("publish selected board", zap.String("campaign_id", campaignID), zap.Error(err))
			} else {
				log.Debug("published selected board", zap.String("campaign_id", campaignID), zap.Int("recipients", n))
			}
		}

		writeJSON(w, http.StatusCreated, createBoardResponse{BoardID: board.ID})
	}
}

// canRead admits the campaign owner and accounts with a connection joined to the campaign.
func canRead(ctx context.Context, s *server.Server, accountID, campaignID string) error {
	owner, err := s.Campaigns.IsOwner(ctx, accountID, campaignID)
	if err != nil {
		return err
	}
	if owner {
		return nil
	}
	member, err := s.Sessions.IsMember(ctx, accountID, campaignID)
	if err != nil {
		return err
	}
	if !member {
		return campaign.ErrForbidden
	}
	return nil
}

func GetBoard(s *server.Server, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		campaignID := chi.URLParam(r, "campaignId")
		if err := canRead(ctx, s, accountFrom(ctx), campaignID); err != nil {
			fail(w, log, err)
			return
		}
		b, err := s.Campaigns.GetBoard(ctx, campaignID, chi.URLParam(r, "boardId"))
		if err != nil {
			fail(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func GetAsset(s *server.Server, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		campaignID := chi.URLParam(r, "campaignId")
		if err := canRead(ctx, s, accountFrom(ctx), campaignID); err != nil {
			fail(w, log, err)
			return
		}
		f, err := s.Assets.Open(campaignID, chi.URLParam(r, "assetId"))
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "asset not found")
			return
		}
		if err != nil {
			fail(w, log, err)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			fail(w, log, err)
			return
		}
		http.ServeContent(w, r, "", info.ModTime(), f)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func fail(w http.ResponseWriter, log *zap.Logger, err error) {
	status := server.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		writeError(w, status, "storage unavailable")
		return
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
