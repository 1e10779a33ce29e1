// Package campaign holds the campaign, token template, board and token operations.
// Every mutation checks ownership before touching storage.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/DoyleJ11/dungeon-club/internal/store"
	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
	"go.uber.org/zap"
)

const maxNameLength = 100

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrTemplateNotFound = errors.New("token template not found")
	ErrBoardNotFound    = errors.New("board not found")
	ErrTokenNotFound    = errors.New("token not found")
	ErrForbidden        = errors.New("only the campaign owner may do that")
	ErrInvalidName      = fmt.Errorf("name must be between 1 and %d characters", maxNameLength)
	ErrInvalidOrder     = errors.New("campaign order must list every owned campaign exactly once")
	ErrTemplateInUse    = errors.New("token template is used by tokens on a board")
	ErrNoSelectedBoard  = errors.New("campaign has no selected board")
	ErrInvalidPosition  = errors.New("position must be finite")
)

type Service struct {
	store *store.Store
	log   *zap.Logger
}

func NewService(s *store.Store, log *zap.Logger) *Service {
	return &Service{store: s, log: log.Named("campaign")}
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

func (s *Service) find(ctx context.Context, tx *store.Store, id string) (*store.Campaign, error) {
	c, err := tx.Campaigns.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	return c, err
}

func (s *Service) owned(ctx context.Context, tx *store.Store, accountID, id string) (*store.Campaign, error) {
	c, err := s.find(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != accountID {
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, accountID string) ([]protocol.CampaignCardSnippet, error) {
	list, err := s.store.Campaigns.Find(ctx, store.Filter{"owner_id": accountID}, "sort_order, created_at")
	if err != nil {
		return nil, fmt.Errorf("campaign.List: %w", err)
	}
	out := make([]protocol.CampaignCardSnippet, 0, len(list))
	for i := range list {
		out = append(out, cardSnippet(&list[i]))
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, accountID, name string) (protocol.CampaignSnippet, error) {
	name, err := validName(name)
	if err != nil {
		return protocol.CampaignSnippet{}, err
	}
	n, err := s.store.Campaigns.Count(ctx, store.Filter{"owner_id": accountID})
	if err != nil {
		return protocol.CampaignSnippet{}, fmt.Errorf("campaign.Create: %w", err)
	}
	c := &store.Campaign{Name: name, OwnerID: accountID, SortOrder: int(n)}
	if err := s.store.Campaigns.Create(ctx, c); err != nil {
		return protocol.CampaignSnippet{}, fmt.Errorf("campaign.Create: %w", err)
	}
	s.log.Info("campaign created", zap.String("campaign_id", c.ID), zap.String("owner_id", accountID))
	return protocol.CampaignSnippet{ID: c.ID, Name: c.Name, OwnerID: c.OwnerID, Templates: []protocol.TokenTemplateSnippet{}}, nil
}

// Delete removes the campaign with its templates, boards and tokens.
func (s *Service) Delete(ctx context.Context, accountID, id string) error {
	return s.store.Transaction(ctx, func(tx *store.Store) error {
		c, err := s.owned(ctx, tx, accountID, id)
		if err != nil {
			return err
		}
		boards, err := tx.Boards.Find(ctx, store.Filter{"campaign_id": c.ID}, "")
		if err != nil {
			return fmt.Errorf("campaign.Delete: %w", err)
		}
		if len(boards) > 0 {
			ids := make([]string, 0, len(boards))
			for _, b := range boards {
				ids = append(ids, b.ID)
			}
			if _, err := tx.Tokens.Delete(ctx, store.Filter{"board_id": ids}); err != nil {
				return fmt.Errorf("campaign.Delete: %w", err)
			}
		}
		for _, del := range []func() (int64, error){
			func() (int64, error) { return tx.Boards.Delete(ctx, store.Filter{"campaign_id": c.ID}) },
			func() (int64, error) { return tx.TokenTemplates.Delete(ctx, store.Filter{"campaign_id": c.ID}) },
			func() (int64, error) { return tx.Campaigns.Delete(ctx, store.Filter{"id": c.ID}) },
		} {
			if _, err := del(); err != nil {
				return fmt.Errorf("campaign.Delete: %w", err)
			}
		}
		return nil
	})
}

// Reorder sets the list order of the caller's campaigns.
func (s *Service) Reorder(ctx context.Context, accountID string, ids []string) error {
	return s.store.Transaction(ctx, func(tx *store.Store) error {
		owned, err := tx.Campaigns.Find(ctx, store.Filter{"owner_id": accountID}, "")
		if err != nil {
			return fmt.Errorf("campaign.Reorder: %w", err)
		}
		if len(owned) != len(ids) {
			return ErrInvalidOrder
		}
		remaining := make(map[string]bool, len(owned))
		for _, c := range owned {
			remaining[c.ID] = true
		}
		for _, id := range ids {
			if !remaining[id] {
				return ErrInvalidOrder
			}
			delete(remaining, id)
		}
		for i, id := range ids {
			if err := tx.Campaigns.Update(ctx, id, map[string]any{"sort_order": i}); err != nil {
				return fmt.Errorf("campaign.Reorder: %w", err)
			}
		}
		return nil
	})
}

func (s *Service) Edit(ctx context.Context, accountID, id, name string) (protocol.CampaignCardSnippet, error) {
	name, err := validName(name)
	if err != nil {
		return protocol.CampaignCardSnippet{}, err
	}
	c, err := s.owned(ctx, s.store, accountID, id)
	if err != nil {
		return protocol.CampaignCardSnippet{}, err
	}
	if err := s.store.Campaigns.Update(ctx, c.ID, map[string]any{"name": name}); err != nil {
		return protocol.CampaignCardSnippet{}, fmt.Errorf("campaign.Edit: %w", err)
	}
	c.Name = name
	return cardSnippet(c), nil
}

// Host is Join restricted to the owner.
func (s *Service) Host(ctx context.Context, accountID, id string) (protocol.CampaignSnippet, error) {
	c, err := s.owned(ctx, s.store, accountID, id)
	if err != nil {
		return protocol.CampaignSnippet{}, err
	}
	return s.snippet(ctx, s.store, c)
}

func (s *Service) Join(ctx context.Context, id string) (protocol.CampaignSnippet, error) {
	c, err := s.find(ctx, s.store, id)
	if err != nil {
		return protocol.CampaignSnippet{}, err
	}
	return s.snippet(ctx, s.store, c)
}

func (s *Service) Snippet(ctx context.Context, id string) (protocol.CampaignSnippet, error) {
	return s.Join(ctx, id)
}

// IsOwner reports whether accountID owns the campaign.
func (s *Service) IsOwner(ctx context.Context, accountID, id string) (bool, error) {
	c, err := s.find(ctx, s.store, id)
	if err != nil {
		return false, err
	}
	return c.OwnerID == accountID, nil
}

func (s *Service) snippet(ctx context.Context, tx *store.Store, c *store.Campaign) (protocol.CampaignSnippet, error) {
	templates, err := tx.TokenTemplates.Find(ctx, store.Filter{"campaign_id": c.ID}, "sort_order, id")
	if err != nil {
		return protocol.CampaignSnippet{}, fmt.Errorf("campaign.snippet: %w", err)
	}
	out := protocol.CampaignSnippet{
		ID:            c.ID,
		Name:          c.Name,
		OwnerID:       c.OwnerID,
		Templates:     make([]protocol.TokenTemplateSnippet, 0, len(templates)),
		SelectedBoard: c.SelectedBoardID,
	}
	for _, t := range templates {
		out.Templates = append(out.Templates, templateSnippet(t))
	}
	return out, nil
}

func cardSnippet(c *store.Campaign) protocol.CampaignCardSnippet {
	return protocol.CampaignCardSnippet{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}

func templateSnippet(t store.TokenTemplate) protocol.TokenTemplateSnippet {
	return protocol.TokenTemplateSnippet{ID: t.ID, Name: t.Name, AvatarID: t.AvatarID}
}
