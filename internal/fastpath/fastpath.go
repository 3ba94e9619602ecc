// Package fastpath implements the local SQLite fast-path (C3): a
// trust-gated, read-only shortcut that projects rows from the third-party
// Notion desktop app's local cache database into the hosted API's
// response shape. Grounded on a pure-Go SQLite usage style via
// database/sql + modernc.org/sqlite, a native-binding substitute for
// shelling out to the sqlite3 binary.
package fastpath

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/everything-chalna/oh-my-notionmcp/internal/config"
)

// FastPath is nil-safe: a nil *FastPath is "not available", so callers can
// hold a FastPath field unconditionally and just check for nil.
type FastPath struct {
	db          *sql.DB
	logger      *zap.Logger
	maxPageSize int
}

// row is the fixed column set consumed from the third-party DB.
type row struct {
	ID                     string
	Type                   string
	ParentTable            sql.NullString
	ParentID               sql.NullString
	CreatedTime            int64
	LastEditedTime         int64
	Alive                  int64
	Properties             string
	Content                string
	MetaLastAccessTimestamp int64
}

// Open constructs the fast-path if both enabled and trust_enabled are set
// (the trust gate) and the DB file is readable. Any other combination
// returns nil without error — this is a deliberate no-op path, not a
// startup failure, since the remote/local HTTP path remains fully
// functional without it.
func Open(cfg config.LocalAppCacheConfig, logger *zap.Logger) *FastPath {
	if logger == nil {
		logger = zap.NewNop()
	}

	if !cfg.Enabled {
		return nil
	}
	if !cfg.TrustEnabled {
		logger.Warn("local app cache fast-path requested but trust gate is not enabled; skipping",
			zap.String("db_path", cfg.DBPath))
		return nil
	}
	if !isReadable(cfg.DBPath) {
		logger.Debug("local app cache DB path is not readable; skipping fast-path", zap.String("db_path", cfg.DBPath))
		return nil
	}

	db, err := sql.Open("sqlite", "file:"+cfg.DBPath+"?mode=ro&immutable=1")
	if err != nil {
		logger.Warn("failed to open local app cache DB; skipping fast-path", zap.Error(err))
		return nil
	}
	db.SetMaxOpenConns(1)

	maxPageSize := cfg.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = config.DefaultMaxPageSize
	}

	return &FastPath{db: db, logger: logger, maxPageSize: maxPageSize}
}

func isReadable(path string) bool {
	if path == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// Close releases the underlying DB handle.
func (f *FastPath) Close() error {
	if f == nil || f.db == nil {
		return nil
	}
	return f.db.Close()
}

// Supported operation names — the fast-path whitelist.
const (
	OpRetrievePage      = "retrieve-a-page"
	OpRetrieveBlock     = "retrieve-a-block"
	OpGetBlockChildren  = "get-block-children"
)

// Supports reports whether op is on the fast-path whitelist.
func Supports(op string) bool {
	switch op {
	case OpRetrievePage, OpRetrieveBlock, OpGetBlockChildren:
		return true
	default:
		return false
	}
}

// queryRowByID fetches a single row for the given normalized ID using a
// parameterized query, the safe-input path even though id has already
// passed UUID validation.
func (f *FastPath) queryRowByID(ctx context.Context, id, typeFilter string) (*row, error) {
	var query string
	var args []interface{}
	if typeFilter != "" {
		query = `SELECT id, type, parent_table, parent_id, created_time, last_edited_time,
			alive, properties, content, meta_last_access_timestamp
			FROM blocks WHERE id = ? AND type = ? ORDER BY meta_last_access_timestamp DESC LIMIT 1`
		args = []interface{}{id, typeFilter}
	} else {
		query = `SELECT id, type, parent_table, parent_id, created_time, last_edited_time,
			alive, properties, content, meta_last_access_timestamp
			FROM blocks WHERE id = ? LIMIT 1`
		args = []interface{}{id}
	}

	f.logger.Debug("fastpath: resolved query", zap.String("id_literal", "'"+sqlEscapeLiteral(id)+"'"))

	r := f.db.QueryRowContext(ctx, query, args...)
	var out row
	if err := r.Scan(&out.ID, &out.Type, &out.ParentTable, &out.ParentID, &out.CreatedTime,
		&out.LastEditedTime, &out.Alive, &out.Properties, &out.Content, &out.MetaLastAccessTimestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (f *FastPath) queryRowsByIDs(ctx context.Context, ids []string) (map[string]*row, error) {
	if len(ids) == 0 {
		return map[string]*row{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, type, parent_table, parent_id, created_time, last_edited_time,
		alive, properties, content, meta_last_access_timestamp
		FROM blocks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*row, len(ids))
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.Type, &r.ParentTable, &r.ParentID, &r.CreatedTime,
			&r.LastEditedTime, &r.Alive, &r.Properties, &r.Content, &r.MetaLastAccessTimestamp); err != nil {
			return nil, err
		}
		out[r.ID] = &r
	}
	return out, rows.Err()
}

func parseJSONObject(raw string) (map[string]interface{}, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func parseJSONArray(raw string) ([]interface{}, bool) {
	var arr []interface{}
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		return nil, false
	}
	return arr, true
}
