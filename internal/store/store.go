// Package store persists accounts, campaigns, boards and tokens through gorm.
package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB

	Accounts       Repository[Account]
	Campaigns      Repository[Campaign]
	TokenTemplates Repository[TokenTemplate]
	Boards         Repository[Board]
	Tokens         Repository[Token]
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:             db,
		Accounts:       NewRepository[Account](db),
		Campaigns:      NewRepository[Campaign](db),
		TokenTemplates: NewRepository[TokenTemplate](db),
		Boards:         NewRepository[Board](db),
		Tokens:         NewRepository[Token](db),
	}
}

// Open connects with the named driver ("postgres" or "sqlite") and migrates the schema.
func Open(driver, dsn string, log *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("store.Open: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("store.Open: %w", err)
	}

	if driver == "sqlite" {
		// sqlite locks tables per writer, so transactions need the only connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("store.Open: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("store.Migrate: %w", err)
	}
	return nil
}

// Transaction runs fn against a store bound to one database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
