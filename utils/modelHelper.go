package utils

import (
	"context"
	"errors"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/* DB fetching */

// FetchModel loads a row by id with optional preloads.
// (may return ErrorRecordNotFound)
func FetchModel[T any](ctx context.Context, db *gorm.DB, id int, associations ...string) (*T, error) {
	dbCtx := db.WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	if err := dbCtx.First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// FetchModelForUpdate loads a row by id holding a row-level exclusive lock until tx ends.
// (may return ErrorRecordNotFound)
func FetchModelForUpdate[T any](ctx context.Context, tx *gorm.DB, id int, associations ...string) (*T, error) {
	return FetchModel[T](ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), id, associations...)
}

// LockModelsForUpdate locks rows in ascending id order so concurrent posters that touch
// overlapping rows always acquire them in the same sequence.
func LockModelsForUpdate[T any](ctx context.Context, tx *gorm.DB, ids []int) ([]T, error) {
	unqIds := UniqueSlice(ids)
	if len(unqIds) == 0 {
		return nil, nil
	}
	sort.Ints(unqIds)

	var rows []T
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", unqIds).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) != len(unqIds) {
		return rows, ErrorRecordNotFound
	}
	return rows, nil
}
