package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/dungeon-club/internal/store"
	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

func (s *Service) CreateTokenTemplate(ctx context.Context, accountID, campaignID, name, avatarID string) (protocol.TokenTemplateSnippet, error) {
	name, err := validName(name)
	if err != nil {
		return protocol.TokenTemplateSnippet{}, err
	}
	var t store.TokenTemplate
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := s.owned(ctx, tx, accountID, campaignID); err != nil {
			return err
		}
		n, err := tx.TokenTemplates.Count(ctx, store.Filter{"campaign_id": campaignID})
		if err != nil {
			return fmt.Errorf("campaign.CreateTokenTemplate: %w", err)
		}
		t = store.TokenTemplate{CampaignID: campaignID, Name: name, AvatarID: avatarID, SortOrder: int(n)}
		if err := tx.TokenTemplates.Create(ctx, &t); err != nil {
			return fmt.Errorf("campaign.CreateTokenTemplate: %w", err)
		}
		return nil
	})
	if err != nil {
		return protocol.TokenTemplateSnippet{}, err
	}
	return templateSnippet(t), nil
}

// DeleteTokenTemplate refuses with ErrTemplateInUse while any token still references the template.
func (s *Service) DeleteTokenTemplate(ctx context.Context, accountID, templateID string) error {
	return s.store.Transaction(ctx, func(tx *store.Store) error {
		t, err := tx.TokenTemplates.FindByID(ctx, templateID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrTemplateNotFound
		}
		if err != nil {
			return fmt.Errorf("campaign.DeleteTokenTemplate: %w", err)
		}
		if _, err := s.owned(ctx, tx, accountID, t.CampaignID); err != nil {
			return err
		}
		inUse, err := tx.Tokens.Count(ctx, store.Filter{"template_id": t.ID})
		if err != nil {
			return fmt.Errorf("campaign.DeleteTokenTemplate: %w", err)
		}
		if inUse > 0 {
			return ErrTemplateInUse
		}
		if _, err := tx.TokenTemplates.Delete(ctx, store.Filter{"id": t.ID}); err != nil {
			return fmt.Errorf("campaign.DeleteTokenTemplate: %w", err)
		}
		return nil
	})
}
