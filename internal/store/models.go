package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Account struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Account) TableName() string { return "accounts" }

type Campaign struct {
	ID              string  `gorm:"primaryKey;size:36"`
	Name            string  `gorm:"not null"`
	OwnerID         string  `gorm:"index;not null;size:36"`
	SortOrder       int     `gorm:"not null;default:0"`
	SelectedBoardID *string `gorm:"size:36"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Campaign) TableName() string { return "campaigns" }

type TokenTemplate struct {
	ID         string `gorm:"primaryKey;size:36"`
	CampaignID string `gorm:"index;not null;size:36"`
	Name       string `gorm:"not null"`
	AvatarID   string `gorm:"size:36"`
	SortOrder  int    `gorm:"not null;default:0"`
}

func (TokenTemplate) TableName() string { return "token_templates" }

type Board struct {
	ID         string `gorm:"primaryKey;size:36"`
	CampaignID string `gorm:"index;not null;size:36"`
	MapImageID string `gorm:"not null;size:36"`
	CreatedAt  time.Time
}

func (Board) TableName() string { return "boards" }

type Token struct {
	ID         string  `gorm:"primaryKey;size:36"`
	CampaignID string  `gorm:"index;not null;size:36"`
	BoardID    string  `gorm:"index;not null;size:36"`
	TemplateID string  `gorm:"index;not null;size:36"`
	X          float64 `gorm:"not null;default:0"`
	Y          float64 `gorm:"not null;default:0"`
	CreatedAt  time.Time
}

func (Token) TableName() string { return "tokens" }

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (a *Account) BeforeCreate(*gorm.DB) error       { newID(&a.ID); return nil }
func (c *Campaign) BeforeCreate(*gorm.DB) error      { newID(&c.ID); return nil }
func (t *TokenTemplate) BeforeCreate(*gorm.DB) error { newID(&t.ID); return nil }
func (b *Board) BeforeCreate(*gorm.DB) error         { newID(&b.ID); return nil }
func (t *Token) BeforeCreate(*gorm.DB) error         { newID(&t.ID); return nil }

var models = []any{&Account{}, &Campaign{}, &TokenTemplate{}, &Board{}, &Token{}}
