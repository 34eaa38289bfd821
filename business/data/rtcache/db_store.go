package rtcache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Schema creates the table used by DBStore
const Schema = "create table if not exists realtime_snapshot ( " +
	"cache_key text primary key, " +
	"data bytea not null, " +
	"updated_at timestamp with time zone not null)"

// DBStore keeps entries in the realtime_snapshot table
type DBStore struct {
	db *sqlx.DB
}

// NewDBStore creates a DBStore on db
func NewDBStore(db *sqlx.DB) *DBStore {
	return &DBStore{db: db}
}

// EnsureSchema creates the realtime_snapshot table if it does not already exist
func (d *DBStore) EnsureSchema(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, Schema)
	return err
}

func (d *DBStore) Read(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	statementString := d.db.Rebind("select data from realtime_snapshot where cache_key = ?")
	err := d.db.GetContext(ctx, &data, statementString, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write upserts the entry in a single statement
func (d *DBStore) Write(ctx context.Context, key string, data []byte) error {
	statementString := "insert into realtime_snapshot (cache_key, data, updated_at) " +
		"values (:cache_key, :data, :updated_at) " +
		"on conflict (cache_key) do update set data = excluded.data, updated_at = excluded.updated_at"
	_, err := d.db.NamedExecContext(ctx, statementString, map[string]interface{}{
		"cache_key":  key,
		"data":       data,
		"updated_at": time.Now(),
	})
	return err
}

func (d *DBStore) Remove(ctx context.Context, key string) error {
	statementString := d.db.Rebind("delete from realtime_snapshot where cache_key = ?")
	_, err := d.db.ExecContext(ctx, statementString, key)
	return err
}
