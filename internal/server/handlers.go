package server

import (
	"context"

	"github.com/DoyleJ11/dungeon-club/internal/store"
	"github.com/DoyleJ11/dungeon-club/internal/ws"
	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

func (s *Server) registerHandlers() {
	r := s.Router

	ws.HandleRequest(r, protocol.Login, s.login)
	ws.HandleRequest(r, protocol.AccountCreate, s.accountCreate)

	ws.HandleRequest(r, protocol.CampaignList, s.campaignList)
	ws.HandleRequest(r, protocol.CampaignCreate, s.campaignCreate)
	ws.HandleRequest(r, protocol.CampaignDelete, s.campaignDelete)
	ws.HandleRequest(r, protocol.CampaignReorder, s.campaignReorder)
	ws.HandleRequest(r, protocol.CampaignEdit, s.campaignEdit)
	ws.HandleRequest(r, protocol.CampaignHost, s.campaignHost)
	ws.HandleRequest(r, protocol.CampaignJoin, s.campaignJoin)

	ws.HandleRequest(r, protocol.TokenTemplateCreate, s.tokenTemplateCreate)
	ws.HandleRequest(r, protocol.TokenTemplateDelete, s.tokenTemplateDelete)
	ws.HandleRequest(r, protocol.BoardSelect, s.boardSelect)

	ws.HandleRequest(r, protocol.TokenCreate, s.tokenCreate)
	ws.HandleForward(r, protocol.TokenMove, s.tokenMove)
}

// Account

func (s *Server) signedIn(ctx context.Context, call *ws.Call, a *store.Account) (protocol.AccountResponse, error) {
	token, err := s.Tokens.Issue(a.ID)
	if err != nil {
		return protocol.AccountResponse{}, err
	}
	if err := s.Sessions.Bind(ctx, call.ConnID, a.ID); err != nil {
		return protocol.AccountResponse{}, err
	}
	return protocol.AccountResponse{
		Account: protocol.AccountSnippet{ID: a.ID, Email: a.Email},
		Token:   token,
	}, nil
}

func (s *Server) login(ctx context.Context, call *ws.Call, p protocol.Credentials) (protocol.AccountResponse, error) {
	a, err := s.Accounts.Login(ctx, p.Email, p.Password)
	if err != nil {
		return protocol.AccountResponse{}, toProtocol(err)
	}
	return s.signedIn(ctx, call, a)
}

func (s *Server) accountCreate(ctx context.Context, call *ws.Call, p protocol.Credentials) (protocol.AccountResponse, error) {
	a, err := s.Accounts.Create(ctx, p.Email, p.Password)
	if err != nil {
		return protocol.AccountResponse{}, toProtocol(err)
	}
	s.sendWelcome(a.Email)
	return s.signedIn(ctx, call, a)
}

// Campaigns

func (s *Server) campaignList(ctx context.Context, call *ws.Call, _ protocol.Empty) (protocol.CampaignListResponse, error) {
	accountID, err := call.Account()
	if err != nil {
		return protocol.CampaignListResponse{}, err
	}
	list, err := s.Campaigns.List(ctx, accountID)
	if err != nil {
		return protocol.CampaignListResponse{}, err
	}
	return protocol.CampaignListResponse{Campaigns: list}, nil
}

func (s *Server) campaignCreate(ctx context.Context, call *ws.Call, p protocol.CampaignCreatePayload) (protocol.CampaignSnippet, error) {
	accountID, err := call.Account()
	if err != nil {
		return protocol.CampaignSnippet{}, err
	}
	c, err := s.Campaigns.Create(ctx, accountID, p.Name)
	return c, toProtocol(err)
}

func (s *Server) campaignDelete(ctx context.Context, call *ws.Call, p protocol.CampaignRef) (protocol.Empty, error) {
	accountID, err := call.Account()
	if err != nil {
		return protocol.Empty{}, err
	}
	return protocol.Empty{}, toProtocol(s.Campaigns.Delete(ctx, accountID, p.ID))
}

func (s *Server) campaignReorder(ctx context.Context, call *ws.Call, p protocol.CampaignReorderPayload) (protocol.Empty, error) {
	accountID, err := call.Account()
	if err != nil {
		return protocol.Empty{}, err
	}
	return protocol.Empty{}, toProtocol(s.Campaigns.Reorder(ctx, accountID, p.CampaignIDs))
}

func (s *Server) campaignEdit(ctx context.Context, call *ws.Call, p protocol.CampaignEditPayload) (protocol.CampaignCardSnippet, error) {
	accountID, err := call.Account()
	if err != nil {
		return protocol.CampaignCardSnippet{}, err
	}
	card, err := s.Campaigns.Edit(ctx, accountID, p.ID, p.Name)
	return card, toProtocol(err)
}

func (s *Server) campaignHost(ctx context.Context, call *ws.Call, p protocol.CampaignRef) (protocol.CampaignSnippet, error) {
	accountID, err := call.Account()
	if err != nil {
		return protocol.CampaignSnippet{}, err
	}
	c, err := s.Campaigns.Host(ctx, accountID, p.ID)
	if err != nil {
		return protocol.CampaignSnippet{}, toProtocol(err)
	}
	return c, s.Sessions.JoinCampaign(ctx, call.ConnID, c.ID)
}

func (s *Server) campaignJoin(ctx context.Context, call *ws.Call, p protocol.CampaignRef) (protocol.CampaignSnippet, error) {
	c, err := s.Campaigns.Join(ctx, p.ID)
	if err != nil {
		return protocol.CampaignSnippet{}, toProtocol(err)
	}
	return c, s.Sessions.JoinCampaign(ctx, call.ConnID, c.ID)
}

func (s *Server) tokenTemplateCreate(ctx context.Context, call *ws.Call, p protocol.TokenTemplateCreatePayload) (protocol.TokenTemplateSnippet, error) {
	campaignID, err := call.Campaign()
	if err != nil {
		return protocol.TokenTemplateSnippet{}, err
	}
	t, err := s.Campaigns.CreateTokenTemplate(ctx, call.AccountID, campaignID, p.Name, p.AvatarID)
	return t, toProtocol(err)
}

func (s *Server) tokenTemplateDelete(ctx context.Context, call *ws.Call, p protocol.TokenTemplateDeletePayload) (protocol.Empty, error) {
	accountID, err := call.Account()
	if err != nil {
		return protocol.Empty{}, err
	}
	return protocol.Empty{}, toProtocol(s.Campaigns.DeleteTokenTemplate(ctx, accountID, p.TokenTemplateID))
}

func (s *Server) boardSelect(ctx context.Context, call *ws.Call, p protocol.BoardSelectPayload) (protocol.CampaignSnippet, error) {
	campaignID, err := call.Campaign()
	if err != nil {
		return protocol.CampaignSnippet{}, err
	}
	c, err := s.Campaigns.SelectBoard(ctx, call.AccountID, campaignID, p.BoardID)
	return c, toProtocol(err)
}

// Tokens

func (s *Server) tokenCreate(ctx context.Context, call *ws.Call, p protocol.TokenCreatePayload) (protocol.TokenCreateResponse, error) {
	campaignID, err := call.Campaign()
	if err != nil {
		return protocol.TokenCreateResponse{}, err
	}
	t, err := s.Campaigns.CreateToken(ctx, campaignID, p.TokenDefinition, p.Position)
	if err != nil {
		return protocol.TokenCreateResponse{}, toProtocol(err)
	}
	return protocol.TokenCreateResponse{Token: t}, nil
}

func (s *Server) tokenMove(ctx context.Context, call *ws.Call, p protocol.TokenMovePayload) error {
	campaignID, err := call.Campaign()
	if err != nil {
		return err
	}
	return toProtocol(s.Campaigns.CheckTokenMove(ctx, campaignID, p.ID, p.Position))
}
