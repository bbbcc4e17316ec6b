package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/siherrmann/lorebase/helper"
	loadSql "github.com/siherrmann/lorebase/sql"
)

// ErrBlobNotFound is returned when no blob exists at the requested key
var ErrBlobNotFound = errors.New("blob not found")

// BlobsDBHandlerFunctions defines the interface for the key/value blob
// primitive backing the content store.
type BlobsDBHandlerFunctions interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// BlobsDBHandler handles blob database operations
type BlobsDBHandler struct {
	db *helper.Database
}

// NewBlobsDBHandler creates a new blobs database handler.
func NewBlobsDBHandler(db *helper.Database, force bool) (*BlobsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	blobsDbHandler := &BlobsDBHandler{
		db: db,
	}

	err := loadSql.LoadBlobsSql(blobsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load blobs sql", err)
	}

	err = blobsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized BlobsDBHandler")

	return blobsDbHandler, nil
}

// CreateTable creates the 'blobs' table in the database.
func (h *BlobsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_blobs();`)
	if err != nil {
		log.Panicf("error initializing blobs table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table blobs")

	return nil
}

// Get retrieves the blob at key, or ErrBlobNotFound
func (h *BlobsDBHandler) Get(ctx context.Context, key string) ([]byte, error) {
	var gotKey string
	var value []byte
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM get_blob($1)`,
		key,
	).Scan(&gotKey, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return value, nil
}

// Put writes the blob at key, replacing any prior value (last-write-wins)
func (h *BlobsDBHandler) Put(ctx context.Context, key string, value []byte) error {
	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT put_blob($1, $2)`,
		key,
		value,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// Delete removes the blob at key. Deleting a missing key is not an error.
func (h *BlobsDBHandler) Delete(ctx context.Context, key string) error {
	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT delete_blob($1)`,
		key,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// List returns all keys starting with prefix in lexicographic order
func (h *BlobsDBHandler) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM list_blobs($1)`,
		prefix,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		err := rows.Scan(&key)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		keys = append(keys, key)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return keys, nil
}
