// File: store/sqlite.go
package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists per-user scoped state, settings, and the append-only
// trade ledger.
type SQLiteStore struct {
	db *sql.DB
}

// TradeRecord is one immutable ledger entry, created once per executed order.
type TradeRecord struct {
	ID          int64     `json:"id"`
	Time        time.Time `json:"time"`
	Side        string    `json:"side"`
	StrategyTag string    `json:"strategy_tag"`
	Price       float64   `json:"price"`
	Qty         float64   `json:"qty"`
	Pnl         float64   `json:"pnl"`
	Symbol      string    `json:"symbol"`
	RSIAtFill   float64   `json:"rsi_at_fill"`
	Commission  float64   `json:"commission"`
	TotalQuote  float64   `json:"total_quote"`
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	schema := `
	CREATE TABLE IF NOT EXISTS state (
		user_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (user_id, key)
	);

	CREATE TABLE IF NOT EXISTS settings (
		user_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (user_id, key)
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		time INTEGER NOT NULL,
		side TEXT NOT NULL,
		strategy TEXT NOT NULL,
		price REAL NOT NULL,
		qty REAL NOT NULL,
		pnl REAL NOT NULL,
		symbol TEXT NOT NULL,
		rsi REAL NOT NULL,
		commission REAL NOT NULL,
		total REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_user_time ON trades (user_id, time);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// --- Scoped State ---

// GetState returns the stored value for (userID, key), or def when absent.
func (s *SQLiteStore) GetState(userID, key, def string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM state WHERE user_id = ? AND key = ?`, userID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read state %s/%s: %w", userID, key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetState(userID, key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO state (user_id, key, value) VALUES (?, ?, ?)`, userID, key, value)
	return err
}

// SetStateBatch writes several keys in one transaction so a position mutation
// is persisted atomically.
func (s *SQLiteStore) SetStateBatch(userID string, values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO state (user_id, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for key, value := range values {
		if _, err := stmt.Exec(userID, key, value); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to write state %s/%s: %w", userID, key, err)
		}
	}
	return tx.Commit()
}

// --- Settings ---

func (s *SQLiteStore) GetSetting(userID, key, def string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE user_id = ? AND key = ?`, userID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read setting %s/%s: %w", userID, key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(userID, key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (user_id, key, value) VALUES (?, ?, ?)`, userID, key, value)
	return err
}

// AllSettings returns every stored setting for a user.
func (s *SQLiteStore) AllSettings(userID string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings for %s: %w", userID, err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		settings[key] = value
	}
	return settings, nil
}

// --- Trade Ledger ---

func (s *SQLiteStore) AppendTrade(userID string, rec TradeRecord) error {
	_, err := s.db.Exec(`INSERT INTO trades (user_id, time, side, strategy, price, qty, pnl, symbol, rsi, commission, total) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, rec.Time.Unix(), rec.Side, rec.StrategyTag, rec.Price, rec.Qty, rec.Pnl, rec.Symbol, rec.RSIAtFill, rec.Commission, rec.TotalQuote)
	return err
}

// ListTrades returns up to limit trades for a user, most recent first.
func (s *SQLiteStore) ListTrades(userID string, limit int) ([]TradeRecord, error) {
	rows, err := s.db.Query(`SELECT id, time, side, strategy, price, qty, pnl, symbol, rsi, commission, total FROM trades WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for %s: %w", userID, err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var ts int64
		if err := rows.Scan(&rec.ID, &ts, &rec.Side, &rec.StrategyTag, &rec.Price, &rec.Qty, &rec.Pnl, &rec.Symbol, &rec.RSIAtFill, &rec.Commission, &rec.TotalQuote); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		rec.Time = time.Unix(ts, 0)
		trades = append(trades, rec)
	}
	return trades, nil
}

// ResetTrades removes the full ledger for a user (PnL statistics reset).
func (s *SQLiteStore) ResetTrades(userID string) error {
	_, err := s.db.Exec(`DELETE FROM trades WHERE user_id = ?`, userID)
	return err
}

// --- Cleanup ---

func (s *SQLiteStore) CleanupOldTrades(olderThan time.Time) error {
	_, err := s.db.Exec(`DELETE FROM trades WHERE time < ?`, olderThan.Unix())
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StartScheduledCleanup prunes ledger rows older than retentionDays on the
// given interval.
func (s *SQLiteStore) StartScheduledCleanup(interval time.Duration, retentionDays int) {
	go func() {
		for {
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			if err := s.CleanupOldTrades(cutoff); err != nil {
				log.Printf("Scheduled trade cleanup error: %v", err)
			}
			time.Sleep(interval)
		}
	}()
}
