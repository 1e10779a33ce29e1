package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/DoyleJ11/dungeon-club/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type Manager struct {
	store *store.Store
	cost  int
	log   *zap.Logger
}

func NewManager(s *store.Store, log *zap.Logger) *Manager {
	return &Manager{store: s, cost: bcrypt.DefaultCost, log: log.Named("account")}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (m *Manager) Create(ctx context.Context, email, password string) (*store.Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	_, err = m.store.Accounts.FindFirst(ctx, store.Filter{"email": email})
	switch {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("account.Create: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return nil, fmt.Errorf("account.Create: %w", err)
	}
	a := &store.Account{Email: email, PasswordHash: string(hash)}
	if err := m.store.Accounts.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("account.Create: %w", err)
	}
	m.log.Info("account created", zap.String("account_id", a.ID))
	return a, nil
}

// Login returns ErrInvalidCredentials for both an unknown email and a wrong password.
func (m *Manager) Login(ctx context.Context, email, password string) (*store.Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	a, err := m.store.Accounts.FindFirst(ctx, store.Filter{"email": email})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("account.Login: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*store.Account, error) {
	a, err := m.store.Accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("account.Get: %w", err)
	}
	return a, nil
}
