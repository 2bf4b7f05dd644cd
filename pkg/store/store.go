// Package store provides the crash-safe record of bridge state using SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cosmossdk.io/log"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_deposits (
	transaction_hash TEXT PRIMARY KEY,
	processed_at     INTEGER NOT NULL,
	mirror_tx_hash   TEXT NOT NULL DEFAULT '',
	status           INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_mirrors (
	deposit_tx_hash TEXT PRIMARY KEY,
	deposit_data    TEXT NOT NULL,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	last_retry_at   INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT
);

CREATE TABLE IF NOT EXISTS bridge_config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is the durable record of processed deposits, pending mirrors and the
// source-chain watermark. Every mutation is committed before the call returns.
// The relayer is the sole mutator.
type Store struct {
	db     *sql.DB
	logger log.Logger
	mu     sync.Mutex
	closed bool
}

// New opens (or creates) the bridge database at path and initializes the
// schema. SQLite runs in WAL mode with a single writer connection.
func New(path string, logger log.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, logger: logger.With("module", "bridge/store")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// AddProcessedDeposit upserts a terminal record by deposit tx hash.
func (s *Store) AddProcessedDeposit(p bridge.ProcessedDeposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bridge.ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO processed_deposits (transaction_hash, processed_at, mirror_tx_hash, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(transaction_hash) DO UPDATE SET
			processed_at = excluded.processed_at,
			mirror_tx_hash = excluded.mirror_tx_hash,
			status = excluded.status`,
		p.DepositTxHash, p.ProcessedAt.UnixMilli(), p.MirrorTxHash, int32(p.Status))
	if err != nil {
		return fmt.Errorf("failed to store processed deposit: %w", err)
	}
	return nil
}

// AddPendingMirror upserts a pending mirror by deposit tx hash.
func (s *Store) AddPendingMirror(pm bridge.PendingMirror) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bridge.ErrStoreClosed
	}

	blob, err := encodeDeposit(pm.Deposit)
	if err != nil {
		return fmt.Errorf("failed to encode deposit: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO pending_mirrors (deposit_tx_hash, deposit_data, retry_count, last_retry_at, error_message)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(deposit_tx_hash) DO UPDATE SET
			deposit_data = excluded.deposit_data,
			retry_count = excluded.retry_count,
			last_retry_at = excluded.last_retry_at,
			error_message = excluded.error_message`,
		pm.DepositTxHash, string(blob), pm.RetryCount, pm.LastRetryAt.UnixMilli(), nullableString(pm.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to store pending mirror: %w", err)
	}
	return nil
}

// UpdatePendingMirror updates only the retry metadata of an existing pending
// mirror. It reports false (and no error) when no row exists.
func (s *Store) UpdatePendingMirror(depositTxHash string, retryCount int, errorMessage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, bridge.ErrStoreClosed
	}

	res, err := s.db.Exec(`
		UPDATE pending_mirrors
		SET retry_count = ?, last_retry_at = ?, error_message = ?
		WHERE deposit_tx_hash = ?`,
		retryCount, time.Now().UnixMilli(), nullableString(errorMessage), depositTxHash)
	if err != nil {
		return false, fmt.Errorf("failed to update pending mirror: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// RemovePendingMirror deletes a pending mirror by key.
func (s *Store) RemovePendingMirror(depositTxHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bridge.ErrStoreClosed
	}

	if _, err := s.db.Exec(`DELETE FROM pending_mirrors WHERE deposit_tx_hash = ?`, depositTxHash); err != nil {
		return fmt.Errorf("failed to remove pending mirror: %w", err)
	}
	return nil
}

// FinalizePendingMirror removes the pending mirror and inserts the processed
// deposit in one transaction. This is the exactly-once boundary: either both
// writes land or neither does.
func (s *Store) FinalizePendingMirror(depositTxHash string, p bridge.ProcessedDeposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bridge.ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM pending_mirrors WHERE deposit_tx_hash = ?`, depositTxHash); err != nil {
		return fmt.Errorf("failed to remove pending mirror: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO processed_deposits (transaction_hash, processed_at, mirror_tx_hash, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(transaction_hash) DO UPDATE SET
			processed_at = excluded.processed_at,
			mirror_tx_hash = excluded.mirror_tx_hash,
			status = excluded.status`,
		p.DepositTxHash, p.ProcessedAt.UnixMilli(), p.MirrorTxHash, int32(p.Status)); err != nil {
		return fmt.Errorf("failed to store processed deposit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit finalize transaction: %w", err)
	}
	return nil
}

// SaveWatermark records the last observed source-chain position.
func (s *Store) SaveWatermark(slot uint64, blockHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bridge.ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `INSERT INTO bridge_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.Exec(upsert, "lastProcessedSlot", fmt.Sprintf("%d", slot)); err != nil {
		return fmt.Errorf("failed to save watermark slot: %w", err)
	}
	if _, err := tx.Exec(upsert, "lastProcessedBlockHash", blockHash); err != nil {
		return fmt.Errorf("failed to save watermark hash: %w", err)
	}
	return tx.Commit()
}

// LoadBridgeState returns the full state snapshot. A fresh database yields
// empty collections and the genesis watermark.
func (s *Store) LoadBridgeState() (bridge.BridgeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := bridge.NewBridgeState()
	if s.closed {
		return state, bridge.ErrStoreClosed
	}

	rows, err := s.db.Query(`SELECT transaction_hash, processed_at, mirror_tx_hash, status FROM processed_deposits`)
	if err != nil {
		return state, fmt.Errorf("failed to load processed deposits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p           bridge.ProcessedDeposit
			processedAt int64
			status      int32
		)
		if err := rows.Scan(&p.DepositTxHash, &processedAt, &p.MirrorTxHash, &status); err != nil {
			return state, fmt.Errorf("failed to scan processed deposit: %w", err)
		}
		p.ProcessedAt = time.UnixMilli(processedAt).UTC()
		p.Status = bridge.MirrorStatus(status)
		state.ProcessedDeposits[p.DepositTxHash] = p
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("failed to iterate processed deposits: %w", err)
	}

	pending, err := s.db.Query(`SELECT deposit_tx_hash, deposit_data, retry_count, last_retry_at, error_message FROM pending_mirrors`)
	if err != nil {
		return state, fmt.Errorf("failed to load pending mirrors: %w", err)
	}
	defer pending.Close()
	for pending.Next() {
		var (
			pm          bridge.PendingMirror
			blob        string
			lastRetryAt int64
			errMsg      sql.NullString
		)
		if err := pending.Scan(&pm.DepositTxHash, &blob, &pm.RetryCount, &lastRetryAt, &errMsg); err != nil {
			return state, fmt.Errorf("failed to scan pending mirror: %w", err)
		}
		deposit, err := decodeDeposit([]byte(blob))
		if err != nil {
			return state, fmt.Errorf("failed to decode deposit %s: %w", pm.DepositTxHash, err)
		}
		pm.Deposit = deposit
		pm.LastRetryAt = time.UnixMilli(lastRetryAt).UTC()
		pm.ErrorMessage = errMsg.String
		state.PendingMirrors[pm.DepositTxHash] = pm
	}
	if err := pending.Err(); err != nil {
		return state, fmt.Errorf("failed to iterate pending mirrors: %w", err)
	}

	if slot, ok, err := s.configValue("lastProcessedSlot"); err != nil {
		return state, err
	} else if ok {
		fmt.Sscanf(slot, "%d", &state.Watermark.LastProcessedSlot)
	}
	if hash, ok, err := s.configValue("lastProcessedBlockHash"); err != nil {
		return state, err
	} else if ok {
		state.Watermark.LastProcessedBlockHash = hash
	}

	return state, nil
}

// GetPendingMirror fetches one pending mirror by deposit tx hash, reporting
// whether the row exists.
func (s *Store) GetPendingMirror(depositTxHash string) (bridge.PendingMirror, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bridge.PendingMirror{}, false, bridge.ErrStoreClosed
	}

	var (
		pm          bridge.PendingMirror
		blob        string
		lastRetryAt int64
		errMsg      sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT deposit_tx_hash, deposit_data, retry_count, last_retry_at, error_message
		FROM pending_mirrors WHERE deposit_tx_hash = ?`, depositTxHash).
		Scan(&pm.DepositTxHash, &blob, &pm.RetryCount, &lastRetryAt, &errMsg)
	if err == sql.ErrNoRows {
		return bridge.PendingMirror{}, false, nil
	}
	if err != nil {
		return bridge.PendingMirror{}, false, fmt.Errorf("failed to load pending mirror: %w", err)
	}

	deposit, err := decodeDeposit([]byte(blob))
	if err != nil {
		return bridge.PendingMirror{}, false, fmt.Errorf("failed to decode deposit %s: %w", depositTxHash, err)
	}
	pm.Deposit = deposit
	pm.LastRetryAt = time.UnixMilli(lastRetryAt).UTC()
	pm.ErrorMessage = errMsg.String
	return pm, true, nil
}

// HasProcessedDeposit reports whether a terminal record exists for the hash.
func (s *Store) HasProcessedDeposit(depositTxHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, bridge.ErrStoreClosed
	}

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM processed_deposits WHERE transaction_hash = ?`, depositTxHash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processed deposit: %w", err)
	}
	return true, nil
}

// RemoveProcessedDeposit deletes a terminal record; used by the administrative
// cleanup path only.
func (s *Store) RemoveProcessedDeposit(depositTxHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bridge.ErrStoreClosed
	}
	if _, err := s.db.Exec(`DELETE FROM processed_deposits WHERE transaction_hash = ?`, depositTxHash); err != nil {
		return fmt.Errorf("failed to remove processed deposit: %w", err)
	}
	return nil
}

func (s *Store) configValue(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM bridge_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load config key %s: %w", key, err)
	}
	return value, true, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
