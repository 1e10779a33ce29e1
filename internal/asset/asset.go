// Package asset stores uploaded campaign files (map images, avatars) on local disk.
package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTooLarge = errors.New("asset exceeds the upload limit")
	ErrEmpty    = errors.New("asset is empty")
)

type Asset struct {
	ID         string
	CampaignID string
	Size       int64
}

type Manager struct {
	dir      string
	maxBytes int64
	log      *zap.Logger
}

func NewManager(dir string, maxBytes int64, log *zap.Logger) *Manager {
	return &Manager{dir: dir, maxBytes: maxBytes, log: log.Named("asset")}
}

func (m *Manager) path(campaignID, id string) string {
	return filepath.Join(m.dir, filepath.Base(campaignID), filepath.Base(id))
}

// UploadAsset copies r into a new asset owned by the campaign.
func (m *Manager) UploadAsset(ctx context.Context, campaignID string, r io.Reader) (Asset, error) {
	if err := os.MkdirAll(filepath.Join(m.dir, filepath.Base(campaignID)), 0o755); err != nil {
		return Asset{}, fmt.Errorf("asset.UploadAsset: %w", err)
	}

	id := uuid.NewString()
	dst := m.path(campaignID, id)
	f, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return Asset{}, fmt.Errorf("asset.UploadAsset: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	n, err := io.Copy(f, io.LimitReader(readerWithContext{ctx, r}, m.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		return Asset{}, fmt.Errorf("asset.UploadAsset: %w", err)
	case n > m.maxBytes:
		return Asset{}, ErrTooLarge
	case n == 0:
		return Asset{}, ErrEmpty
	}

	if err := os.Rename(tmp, dst); err != nil {
		return Asset{}, fmt.Errorf("asset.UploadAsset: %w", err)
	}
	m.log.Info("asset stored", zap.String("campaign_id", campaignID), zap.String("asset_id", id), zap.Int64("bytes", n))
	return Asset{ID: id, CampaignID: campaignID, Size: n}, nil
}

func (m *Manager) Open(campaignID, id string) (*os.File, error) {
	f, err := os.Open(m.path(campaignID, id))
	if err != nil {
		return nil, fmt.Errorf("asset.Open: %w", err)
	}
	return f, nil
}

// Remove deletes an asset; a missing asset is not an error.
func (m *Manager) Remove(campaignID, id string) error {
	if err := os.Remove(m.path(campaignID, id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("asset.Remove: %w", err)
	}
	return nil
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
