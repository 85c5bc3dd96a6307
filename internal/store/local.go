package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/Aika-vrdj/Rebel-Radio/internal/quota"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const identityKey = "client_id"

// Local is the device-scoped fallback store. It absorbs every failure: if
// sqlite cannot be opened or a write fails, records degrade to an in-memory
// history (audio stripped) so at least metadata survives. No method on the
// write path ever returns an error.
type Local struct {
	db           *sql.DB
	historyLimit int
	logger       zerolog.Logger

	mu         sync.Mutex
	memHistory []broadcast.Broadcast
	memQuota   map[string]quota.State
	memClient  string
}

// OpenLocal opens (or falls back around) the local store at path. It never
// fails; a store without a working database serves from memory.
func OpenLocal(path string, historyLimit int, logger zerolog.Logger) *Local {
	if historyLimit <= 0 {
		historyLimit = 1
	}
	l := &Local{
		historyLimit: historyLimit,
		logger:       logger.With().Str("component", "local_store").Logger(),
		memQuota:     make(map[string]quota.State),
	}

	db, err := openSQLite(path)
	if err != nil {
		l.logger.Warn().Err(err).Str("path", path).Msg("Local database unavailable, serving from memory")
		return l
	}
	l.db = db
	return l
}

func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("local store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	migrations, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(string(migrations)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying database.
func (l *Local) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// SaveBroadcast appends a record to the bounded local history. The audio
// payload dominates record size, so on a failed insert the record is
// retried with the payload stripped before degrading to memory.
func (l *Local) SaveBroadcast(ctx context.Context, b broadcast.Broadcast) {
	if l.db != nil {
		if err := l.insert(ctx, b); err == nil {
			l.trim(ctx)
			return
		} else {
			l.logger.Warn().Err(err).Str("broadcast_id", b.ID).Msg("Local insert failed, retrying without audio payload")
		}

		stripped := b
		stripped.AudioData = ""
		if err := l.insert(ctx, stripped); err == nil {
			l.trim(ctx)
			return
		} else {
			l.logger.Error().Err(err).Str("broadcast_id", b.ID).Msg("Local insert failed even without audio, keeping record in memory")
		}
	}

	stripped := b
	stripped.AudioData = ""
	l.mu.Lock()
	l.memHistory = append([]broadcast.Broadcast{stripped}, l.memHistory...)
	if len(l.memHistory) > l.historyLimit {
		l.memHistory = l.memHistory[:l.historyLimit]
	}
	l.mu.Unlock()
}

func (l *Local) insert(ctx context.Context, b broadcast.Broadcast) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO broadcasts(id, client_id, title, script, prompt_source, audio_base64, image_url, mode, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO NOTHING`,
		b.ID, b.ClientID, b.Title, b.Script, b.PromptSource, b.AudioData, b.ImageURL, string(b.Mode),
		b.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// trim evicts the oldest rows beyond the history cap.
func (l *Local) trim(ctx context.Context) {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM broadcasts WHERE id NOT IN (
			SELECT id FROM broadcasts ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`, l.historyLimit)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to trim local history")
	}
}

// ListBroadcasts returns the local history, newest first.
func (l *Local) ListBroadcasts(ctx context.Context, limit int) []broadcast.Broadcast {
	if l.db != nil {
		rows, err := l.db.QueryContext(ctx,
			`SELECT id, client_id, title, script, prompt_source, audio_base64, image_url, mode, created_at
			 FROM broadcasts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
		if err == nil {
			defer rows.Close()
			var out []broadcast.Broadcast
			for rows.Next() {
				var b broadcast.Broadcast
				var mode, createdAt string
				if err := rows.Scan(&b.ID, &b.ClientID, &b.Title, &b.Script, &b.PromptSource,
					&b.AudioData, &b.ImageURL, &mode, &createdAt); err != nil {
					l.logger.Warn().Err(err).Msg("Skipping unreadable local row")
					continue
				}
				b.Mode = broadcast.Mode(mode)
				if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
					b.CreatedAt = t
				}
				out = append(out, b)
			}
			if rows.Err() == nil {
				return out
			}
			l.logger.Warn().Err(rows.Err()).Msg("Local history read failed mid-scan")
		} else {
			l.logger.Warn().Err(err).Msg("Local history query failed, serving from memory")
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]broadcast.Broadcast, 0, min(limit, len(l.memHistory)))
	for i := 0; i < len(l.memHistory) && i < limit; i++ {
		out = append(out, l.memHistory[i])
	}
	return out
}

// GetQuota implements quota.Repository. A missing row yields ok=false.
func (l *Local) GetQuota(ctx context.Context, clientID string) (quota.State, bool, error) {
	if l.db != nil {
		var count int
		var resetAt int64
		err := l.db.QueryRowContext(ctx,
			`SELECT count, reset_at FROM quotas WHERE id = ?`, clientID).Scan(&count, &resetAt)
		if err == nil {
			return quota.State{Count: count, ResetAt: time.UnixMilli(resetAt)}, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			l.logger.Warn().Err(err).Msg("Local quota read failed, serving from memory")
		} else {
			return quota.State{}, false, nil
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.memQuota[clientID]
	return state, ok, nil
}

// PutQuota implements quota.Repository. Failures degrade to memory and are
// never surfaced.
func (l *Local) PutQuota(ctx context.Context, clientID string, state quota.State) error {
	if l.db != nil {
		_, err := l.db.ExecContext(ctx,
			`INSERT INTO quotas(id, count, reset_at) VALUES(?,?,?)
			 ON CONFLICT(id) DO UPDATE SET count=excluded.count, reset_at=excluded.reset_at`,
			clientID, state.Count, state.ResetAt.UnixMilli())
		if err == nil {
			return nil
		}
		l.logger.Warn().Err(err).Msg("Local quota write failed, keeping in memory")
	}

	l.mu.Lock()
	l.memQuota[clientID] = state
	l.mu.Unlock()
	return nil
}

// ClientID returns the persisted device identifier, minting one on first
// use. The identifier is scoped to this device, not shared across devices.
func (l *Local) ClientID(ctx context.Context) string {
	l.mu.Lock()
	cached := l.memClient
	l.mu.Unlock()
	if cached != "" {
		return cached
	}

	id := ""
	if l.db != nil {
		err := l.db.QueryRowContext(ctx,
			`SELECT value FROM identity WHERE key = ?`, identityKey).Scan(&id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			l.logger.Warn().Err(err).Msg("Local identity read failed")
		}
	}
	if id == "" {
		id = uuid.New().String()
		if l.db != nil {
			if _, err := l.db.ExecContext(ctx,
				`INSERT INTO identity(key, value) VALUES(?,?) ON CONFLICT(key) DO NOTHING`,
				identityKey, id); err != nil {
				l.logger.Warn().Err(err).Msg("Local identity write failed")
			}
		}
	}

	l.mu.Lock()
	l.memClient = id
	l.mu.Unlock()
	return id
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
