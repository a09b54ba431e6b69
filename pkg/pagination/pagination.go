// Package pagination implements newest-first keyset paging over
// (created_at, id).
package pagination

import "gorm.io/gorm"

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Page is one slice of a listing. NextCursor is empty on the last page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NormalizeLimit maps non-positive limits to DefaultLimit and caps at MaxLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer asks for one row past the page so BuildPage can tell
// whether another page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func NormalizeOffset(offset int) int {
	return max(offset, 0)
}

// BuildPage drops the look-ahead row and points NextCursor at the last row
// kept.
func BuildPage[T any](rows []T, limit int, cursorOf func(T) Cursor) Page[T] {
	limit = NormalizeLimit(limit)
	if len(rows) > limit {
		kept := rows[:limit]
		return Page[T]{Items: kept, NextCursor: cursorOf(kept[limit-1]).Encode()}
	}
	if rows == nil {
		rows = []T{}
	}
	return Page[T]{Items: rows}
}

// Newest orders by created_at then id, both descending, and skips past
// cursor when it is set.
func Newest(cursor *Cursor, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if cursor != nil {
			db = db.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		}
		return db.Order("created_at DESC").Order("id DESC").Limit(limit)
	}
}
