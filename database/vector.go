package database

import (
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// nullVector scans a possibly NULL vector column
type nullVector struct {
	Vector pgvector.Vector
	Valid  bool
}

func (v *nullVector) Scan(src interface{}) error {
	if src == nil {
		v.Valid = false
		return nil
	}
	if err := v.Vector.Scan(src); err != nil {
		return fmt.Errorf("scan vector: %w", err)
	}
	v.Valid = true
	return nil
}

// Slice returns the embedding values or nil for a NULL column
func (v *nullVector) Slice() []float32 {
	if !v.Valid {
		return nil
	}
	return v.Vector.Slice()
}
