package campaign

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/DoyleJ11/dungeon-club/internal/store"
	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

func validPosition(p protocol.Position) error {
	for _, v := range []float64{p.X, p.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidPosition
		}
	}
	return nil
}

// AddBoard creates a board showing mapImageID. The first board of a campaign becomes its
// selected board; selected reports whether that happened.
func (s *Service) AddBoard(ctx context.Context, accountID, campaignID, mapImageID string) (board protocol.BoardSnippet, selected bool, err error) {
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		c, err := s.owned(ctx, tx, accountID, campaignID)
		if err != nil {
			return err
		}
		b := &store.Board{CampaignID: c.ID, MapImageID: mapImageID}
		if err := tx.Boards.Create(ctx, b); err != nil {
			return fmt.Errorf("campaign.AddBoard: %w", err)
		}
		if c.SelectedBoardID == nil {
			if err := tx.Campaigns.Update(ctx, c.ID, map[string]any{"selected_board_id": b.ID}); err != nil {
				return fmt.Errorf("campaign.AddBoard: %w", err)
			}
			selected = true
		}
		board = boardSnippet(b, nil)
		return nil
	})
	return board, selected, err
}

func (s *Service) SelectBoard(ctx context.Context, accountID, campaignID, boardID string) (protocol.CampaignSnippet, error) {
	var out protocol.CampaignSnippet
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		c, err := s.owned(ctx, tx, accountID, campaignID)
		if err != nil {
			return err
		}
		if _, err := s.board(ctx, tx, campaignID, boardID); err != nil {
			return err
		}
		if err := tx.Campaigns.Update(ctx, c.ID, map[string]any{"selected_board_id": boardID}); err != nil {
			return fmt.Errorf("campaign.SelectBoard: %w", err)
		}
		c.SelectedBoardID = &boardID
		out, err = s.snippet(ctx, tx, c)
		return err
	})
	return out, err
}

// GetBoard returns the board with its tokens in creation order.
func (s *Service) GetBoard(ctx context.Context, campaignID, boardID string) (protocol.BoardSnippet, error) {
	b, err := s.board(ctx, s.store, campaignID, boardID)
	if err != nil {
		return protocol.BoardSnippet{}, err
	}
	tokens, err := s.store.Tokens.Find(ctx, store.Filter{"board_id": b.ID}, "created_at, id")
	if err != nil {
		return protocol.BoardSnippet{}, fmt.Errorf("campaign.GetBoard: %w", err)
	}
	return boardSnippet(b, tokens), nil
}

// CreateToken places a token of templateID on the campaign's selected board.
func (s *Service) CreateToken(ctx context.Context, campaignID, templateID string, pos protocol.Position) (protocol.TokenSnippet, error) {
	if err := validPosition(pos); err != nil {
		return protocol.TokenSnippet{}, err
	}
	var t store.Token
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		c, err := s.find(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if c.SelectedBoardID == nil {
			return ErrNoSelectedBoard
		}
		tmpl, err := tx.TokenTemplates.FindByID(ctx, templateID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && tmpl.CampaignID != c.ID) {
			return ErrTemplateNotFound
		}
		if err != nil {
			return fmt.Errorf("campaign.CreateToken: %w", err)
		}
		t = store.Token{CampaignID: c.ID, BoardID: *c.SelectedBoardID, TemplateID: tmpl.ID, X: pos.X, Y: pos.Y}
		if err := tx.Tokens.Create(ctx, &t); err != nil {
			return fmt.Errorf("campaign.CreateToken: %w", err)
		}
		return nil
	})
	if err != nil {
		return protocol.TokenSnippet{}, err
	}
	return tokenSnippet(t), nil
}

// CheckTokenMove reports whether a move of tokenID may be relayed to the campaign. Moves
// are forwarded as-is and never stored; a board load shows the position from creation.
func (s *Service) CheckTokenMove(ctx context.Context, campaignID, tokenID string, pos protocol.Position) error {
	if err := validPosition(pos); err != nil {
		return err
	}
	_, err := s.store.Tokens.FindFirst(ctx, store.Filter{"id": tokenID, "campaign_id": campaignID})
	if errors.Is(err, store.ErrNotFound) {
		return ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("campaign.CheckTokenMove: %w", err)
	}
	return nil
}

func (s *Service) board(ctx context.Context, tx *store.Store, campaignID, boardID string) (*store.Board, error) {
	b, err := tx.Boards.FindFirst(ctx, store.Filter{"id": boardID, "campaign_id": campaignID})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("campaign.board: %w", err)
	}
	return b, nil
}

func boardSnippet(b *store.Board, tokens []store.Token) protocol.BoardSnippet {
	out := protocol.BoardSnippet{
		ID:         b.ID,
		CampaignID: b.CampaignID,
		MapImageID: b.MapImageID,
		Tokens:     make([]protocol.TokenSnippet, 0, len(tokens)),
	}
	for _, t := range tokens {
		out.Tokens = append(out.Tokens, tokenSnippet(t))
	}
	return out
}

func tokenSnippet(t store.Token) protocol.TokenSnippet {
	return protocol.TokenSnippet{ID: t.ID, TokenDefinition: t.TemplateID, Position: protocol.Position{X: t.X, Y: t.Y}}
}
