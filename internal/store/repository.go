package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

// Filter is an equality filter on column names.
type Filter map[string]any

// Repository is the generic create/read/update/delete interface over one model.
type Repository[T any] struct {
	db *gorm.DB
}

func NewRepository[T any](db *gorm.DB) Repository[T] {
	return Repository[T]{db: db}
}

func (r Repository[T]) name() string {
	var v T
	return fmt.Sprintf("%T", v)
}

func (r Repository[T]) FindByID(ctx context.Context, id string) (*T, error) {
	return r.FindFirst(ctx, Filter{"id": id})
}

func (r Repository[T]) FindFirst(ctx context.Context, filter Filter) (*T, error) {
	var v T
	if err := r.db.WithContext(ctx).Where(map[string]any(filter)).Take(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find %s: %w", r.name(), err)
	}
	return &v, nil
}

// Find returns every row matching filter, sorted by order when it is not empty.
func (r Repository[T]) Find(ctx context.Context, filter Filter, order string) ([]T, error) {
	var out []T
	q := r.db.WithContext(ctx).Where(map[string]any(filter))
	if order != "" {
		q = q.Order(order)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", r.name(), err)
	}
	return out, nil
}

func (r Repository[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(new(T)).Where(map[string]any(filter)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.name(), err)
	}
	return n, nil
}

func (r Repository[T]) Create(ctx context.Context, v *T) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("create %s: %w", r.name(), err)
	}
	return nil
}

// Update sets fields on the row with the given id.
func (r Repository[T]) Update(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", r.name(), res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repository[T]) Delete(ctx context.Context, filter Filter) (int64, error) {
	res := r.db.WithContext(ctx).Where(map[string]any(filter)).Delete(new(T))
	if res.Error != nil {
		return 0, fmt.Errorf("delete %s: %w", r.name(), res.Error)
	}
	return res.RowsAffected, nil
}
