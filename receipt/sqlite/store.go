// Package sqlite is the durable receipt store implementation. One store file
// per process install; the file handle and key material are owned exclusively
// by this store for the process lifetime.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lxpay/receipt-store/database"
	"github.com/lxpay/receipt-store/query"
	"github.com/lxpay/receipt-store/receipt"
)

//go:embed schema.sql
var schemaSQL string

const receiptTable = "receipts"

// ErrKeyChangeAfterOpen is returned when a passphrase change is attempted on
// an already-open store. Re-keying a live store is undefined; open a new
// store with the new passphrase instead.
var ErrKeyChangeAfterOpen = errors.New("passphrase cannot change after the store is open")

type Config struct {
	// Path is the store file location. Parent directories are created as
	// needed.
	Path string

	// Passphrase, when non-empty, keys the store file. It is fixed at open
	// time. The pragma is honored by SQLCipher-enabled builds of the sqlite3
	// driver and ignored by plain builds.
	Passphrase string
}

type Store struct {
	db *sqlx.DB
}

// DefaultPath constructs the platform-appropriate store file path for an app,
// creating the application-data directory if needed.
func DefaultPath(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", receipt.WrapError(receipt.CodeUnableToConstructDatabasePath, err)
	}

	dir := filepath.Join(configDir, appName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", receipt.WrapError(receipt.CodeUnableToConstructDatabasePath, err)
	}

	return filepath.Join(dir, "receipts.db"), nil
}

// Open creates or opens the store file at cfg.Path. A failure here is fatal
// to all subsequent operations; there is no lazy re-open.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, receipt.WrapError(receipt.CodeUnableToConstructDatabasePath, errors.New("empty database path"))
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, receipt.WrapError(receipt.CodeUnableToConstructDatabasePath, err)
	}

	db, err := sqlx.Open("sqlite3", cfg.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY and keeps access serialized at the driver level too.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// The key pragma must run before any other statement touches the file.
	if cfg.Passphrase != "" {
		quoted := strings.ReplaceAll(cfg.Passphrase, "'", "''")
		if _, err := db.Exec(fmt.Sprintf("PRAGMA key = '%s'", quoted)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to key database: %w", err)
		}
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		// A schema failure on an existing file usually means a corrupt file
		// or a wrong passphrase.
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetPassphrase always fails: the passphrase is fixed at Open time.
func (s *Store) SetPassphrase(string) error {
	return ErrKeyChangeAfterOpen
}

func (s *Store) reset() {
	if _, err := s.db.Exec(`DELETE FROM ` + receiptTable); err != nil {
		panic(err)
	}
}

type rowModel struct {
	TransactionID         string        `db:"transaction_id"`
	OriginalTransactionID string        `db:"original_transaction_id"`
	ProductID             string        `db:"product_id"`
	ProductFamily         string        `db:"product_family"`
	PurchaseDate          int64         `db:"purchase_date"`
	ExpiresDate           sql.NullInt64 `db:"expires_date"`
	IsTrialPeriod         bool          `db:"is_trial_period"`
	RawReceiptData        string        `db:"raw_receipt_data"`
}

func toModel(row *receipt.Row) *rowModel {
	m := &rowModel{
		TransactionID:         row.TransactionID,
		OriginalTransactionID: row.OriginalTransactionID,
		ProductID:             row.ProductID,
		ProductFamily:         row.ProductFamily,
		PurchaseDate:          row.PurchaseDate.Unix(),
		IsTrialPeriod:         row.IsTrialPeriod,
		RawReceiptData:        database.Encode(row.RawReceiptData),
	}
	if row.ExpiresDate != nil {
		m.ExpiresDate = sql.NullInt64{Int64: row.ExpiresDate.Unix(), Valid: true}
	}
	return m
}

func fromModel(m *rowModel) (*receipt.Row, error) {
	rawReceipt, err := database.Decode(m.RawReceiptData)
	if err != nil {
		return nil, err
	}

	row := &receipt.Row{
		TransactionID:         m.TransactionID,
		OriginalTransactionID: m.OriginalTransactionID,
		ProductID:             m.ProductID,
		ProductFamily:         m.ProductFamily,
		PurchaseDate:          time.Unix(m.PurchaseDate, 0).UTC(),
		IsTrialPeriod:         m.IsTrialPeriod,
		RawReceiptData:        rawReceipt,
	}
	if m.ExpiresDate.Valid {
		expires := time.Unix(m.ExpiresDate.Int64, 0).UTC()
		row.ExpiresDate = &expires
	}
	return row, nil
}

func (s *Store) Apply(ctx context.Context, row *receipt.Row) error {
	if err := row.Validate(); err != nil {
		return err
	}

	m := toModel(row)

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO `+receiptTable+`
		(transaction_id, original_transaction_id, product_id, product_family, purchase_date, expires_date, is_trial_period, raw_receipt_data)
		VALUES (:transaction_id, :original_transaction_id, :product_id, :product_family, :purchase_date, :expires_date, :is_trial_period, :raw_receipt_data)
		ON CONFLICT (transaction_id) DO NOTHING
	`, m)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return receipt.ErrExists
	}
	return nil
}

func (s *Store) QueryFamily(ctx context.Context, productFamily string, opts ...query.Option) ([]*receipt.Row, error) {
	q := `SELECT * FROM ` + receiptTable + ` WHERE product_family = ?` + orderAndLimit(opts)
	return s.selectRows(ctx, q, productFamily)
}

func (s *Store) QueryAll(ctx context.Context, opts ...query.Option) ([]*receipt.Row, error) {
	q := `SELECT * FROM ` + receiptTable + orderAndLimit(opts)
	return s.selectRows(ctx, q)
}

func (s *Store) selectRows(ctx context.Context, q string, args ...any) ([]*receipt.Row, error) {
	var models []*rowModel
	if err := s.db.SelectContext(ctx, &models, q, args...); err != nil {
		return nil, err
	}

	rows := make([]*receipt.Row, 0, len(models))
	for _, m := range models {
		row, err := fromModel(m)
		if err != nil {
			return nil, receipt.WrapError(receipt.CodeInvalidReceiptTableRow, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func orderAndLimit(opts []query.Option) string {
	applied := query.ApplyOptions(opts...)

	direction := "ASC"
	if applied.Order == query.Desc {
		direction = "DESC"
	}

	clause := fmt.Sprintf(" ORDER BY purchase_date %s, transaction_id %s", direction, direction)
	if applied.Limit > 0 {
		clause += fmt.Sprintf(" LIMIT %d", applied.Limit)
	}
	return clause
}
