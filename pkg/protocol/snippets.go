package protocol

import "time"

// Snippets are the wire projections of persisted entities.

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type AccountSnippet struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type CampaignCardSnippet struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type TokenTemplateSnippet struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AvatarID string `json:"avatarId,omitempty"`
}

type CampaignSnippet struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	OwnerID       string                 `json:"ownerId"`
	Templates     []TokenTemplateSnippet `json:"templates"`
	SelectedBoard *string                `json:"selectedBoard,omitempty"`
}

type TokenSnippet struct {
	ID              string   `json:"id"`
	TokenDefinition string   `json:"tokenDefinition"`
	Position        Position `json:"position"`
}

type BoardSnippet struct {
	ID         string         `json:"id"`
	CampaignID string         `json:"campaignId"`
	MapImageID string         `json:"mapImageId"`
	Tokens     []TokenSnippet `json:"tokens"`
}
