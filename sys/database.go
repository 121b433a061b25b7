package sys

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
)

// --- Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	// Explicitly reference sqlite3 driver to avoid blank identifier
	// The driver registers itself via its init() function
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS agent_sessions (
			id TEXT PRIMARY KEY,
			guild_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS agent_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			video_id TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_history_session ON agent_history (session_id)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	migrations := []string{
		"ALTER TABLE agent_history ADD COLUMN channel TEXT DEFAULT ''",
	}

	for _, m := range migrations {
		if _, err := DB.ExecContext(initCtx, m); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
	}

	// Voice connections never survive a restart, so neither do their agent sessions.
	if err := ClearAgentSessions(initCtx); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Bot Persistence ---

// BotConfig helpers are used by the loader for command sync state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Agent Sessions ---

type AgentHistoryEntry struct {
	VideoID   string
	Title     string
	URL       string
	Channel   string
	CreatedAt time.Time
}

func CreateAgentSession(ctx context.Context, sessionID string, guildID snowflake.ID) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO agent_sessions (id, guild_id) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET guild_id = excluded.guild_id, created_at = CURRENT_TIMESTAMP
	`, sessionID, guildID.String())
	if err != nil {
		return err
	}
	_, err = DB.ExecContext(ctx, "DELETE FROM agent_history WHERE session_id = ?", sessionID)
	return err
}

func DeleteAgentSession(ctx context.Context, sessionID string) error {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM agent_history WHERE session_id = ?", sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM agent_sessions WHERE id = ?", sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

func AgentSessionExists(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := DB.QueryRowContext(ctx, "SELECT COUNT(1) FROM agent_sessions WHERE id = ?", sessionID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func ClearAgentSessions(ctx context.Context) error {
	if _, err := DB.ExecContext(ctx, "DELETE FROM agent_history"); err != nil {
		return err
	}
	_, err := DB.ExecContext(ctx, "DELETE FROM agent_sessions")
	return err
}

func AddAgentHistory(ctx context.Context, sessionID string, e AgentHistoryEntry) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO agent_history (session_id, video_id, title, url, channel)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, e.VideoID, e.Title, e.URL, e.Channel)
	return err
}

func GetAgentHistory(ctx context.Context, sessionID string) ([]AgentHistoryEntry, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT video_id, title, url, COALESCE(channel, ''), created_at
		FROM agent_history WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []AgentHistoryEntry
	for rows.Next() {
		var e AgentHistoryEntry
		if err := rows.Scan(&e.VideoID, &e.Title, &e.URL, &e.Channel, &e.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	return history, rows.Err()
}
