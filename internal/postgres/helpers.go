package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// textPtrToNullable converts a *string to pgtype.Text.
// nil → NULL, non-nil → valid text.
func textPtrToNullable(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

// nullableTextToPtr converts pgtype.Text to *string.
func nullableTextToPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

// intPtrToNullable converts a *int to pgtype.Int4.
func intPtrToNullable(n *int) pgtype.Int4 {
	if n == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*n), Valid: true}
}

// nullableInt4ToPtr converts pgtype.Int4 to *int.
func nullableInt4ToPtr(n pgtype.Int4) *int {
	if n.Valid {
		v := int(n.Int32)
		return &v
	}
	return nil
}

// int64PtrToNullable converts a *int64 to pgtype.Int8.
func int64PtrToNullable(n *int64) pgtype.Int8 {
	if n == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *n, Valid: true}
}

// nullableInt8ToPtr converts pgtype.Int8 to *int64.
func nullableInt8ToPtr(n pgtype.Int8) *int64 {
	if n.Valid {
		v := n.Int64
		return &v
	}
	return nil
}

// float64PtrToNullable converts a *float64 to pgtype.Float8.
func float64PtrToNullable(f *float64) pgtype.Float8 {
	if f == nil {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: *f, Valid: true}
}

// nullableFloat8ToPtr converts pgtype.Float8 to *float64.
func nullableFloat8ToPtr(f pgtype.Float8) *float64 {
	if f.Valid {
		v := f.Float64
		return &v
	}
	return nil
}

// metaToJSON marshals a free-form metadata map for a JSONB column.
// nil maps collapse to the empty object so the column stays NOT NULL.
func metaToJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

// jsonToMeta unmarshals a JSONB column into a metadata map. Empty or NULL
// column values yield a nil map.
func jsonToMeta(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
