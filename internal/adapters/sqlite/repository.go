package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chartdesk/internal/domain"
	"chartdesk/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.DrawingRepository and ports.PositionRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/chartdesk.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serializes writers; SQLite would return SQLITE_BUSY otherwise.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS drawings (
		id TEXT PRIMARY KEY,
		referral_code TEXT NOT NULL,
		symbol TEXT NOT NULL,
		type TEXT NOT NULL,
		seq INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		entry_price REAL NOT NULL,
		direction TEXT NOT NULL,
		take_profit REAL DEFAULT NULL,
		stop_loss REAL DEFAULT NULL,
		opened_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_drawings_scope ON drawings (referral_code, symbol, seq);
	CREATE INDEX IF NOT EXISTS idx_positions_symbol_status ON positions (symbol, status);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- DrawingRepository Implementation ---

// SaveDrawings replaces the stored drawing list of a scope in one transaction.
func (r *Repository) SaveDrawings(ctx context.Context, scope domain.Scope, drawings []domain.Drawing) (err error) {
	if err := scope.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin drawings transaction: %w: %w", ports.ErrDBConnection, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const deleteQuery = `DELETE FROM drawings WHERE referral_code = ? AND symbol = ?`
	if _, err = tx.ExecContext(ctx, deleteQuery, scope.ReferralCode, scope.Symbol); err != nil {
		return fmt.Errorf("failed to clear drawings for %s/%s: %w: %w", scope.ReferralCode, scope.Symbol, ports.ErrUpdateFailed, err)
	}

	const insertQuery = `
	INSERT INTO drawings (id, referral_code, symbol, type, seq, payload, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i := range drawings {
		d := drawings[i].Clone()
		d.Scope = scope
		if err = d.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ports.ErrInvalidDrawing, err)
		}
		payload, mErr := json.Marshal(d)
		if mErr != nil {
			err = fmt.Errorf("failed to encode drawing %s: %w", d.ID, mErr)
			return err
		}
		if _, err = tx.ExecContext(ctx, insertQuery, d.ID, scope.ReferralCode, scope.Symbol, string(d.Type), i, string(payload), d.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("drawing %s: %w", d.ID, ports.ErrDuplicateEntry)
			}
			return fmt.Errorf("failed to insert drawing %s: %w: %w", d.ID, ports.ErrUpdateFailed, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit drawings for %s/%s: %w: %w", scope.ReferralCode, scope.Symbol, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Drawings saved", map[string]interface{}{"referralCode": scope.ReferralCode, "symbol": scope.Symbol, "count": len(drawings)})
	return nil
}

// LoadDrawings retrieves the drawing list of a scope in creation order.
func (r *Repository) LoadDrawings(ctx context.Context, scope domain.Scope) ([]domain.Drawing, error) {
	const query = `
	SELECT payload FROM drawings
	WHERE referral_code = ? AND symbol = ?
	ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, scope.ReferralCode, scope.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query drawings for %s/%s: %w: %w", scope.ReferralCode, scope.Symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	drawings := make([]domain.Drawing, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan drawing row: %w", err)
		}
		var d domain.Drawing
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			r.logger.Warn(ctx, "Skipping undecodable drawing", map[string]interface{}{"error": err.Error()})
			continue
		}
		drawings = append(drawings, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drawing rows: %w", err)
	}
	return drawings, nil
}

// --- PositionRepository Implementation ---

// Create saves a new position.
func (r *Repository) Create(ctx context.Context, pos *domain.Position) error {
	const query = `
	INSERT INTO positions (id, symbol, entry_price, direction, take_profit, stop_loss, opened_at, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		pos.ID, pos.Symbol, pos.EntryPrice, pos.Direction, nullFloat(pos.TakeProfit), nullFloat(pos.StopLoss), pos.OpenedAt, pos.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("position %s: %w", pos.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert position for symbol %s: %w", pos.Symbol, err)
	}
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol})
	return nil
}

// UpdateExits persists the TP/SL levels of an existing position.
func (r *Repository) UpdateExits(ctx context.Context, pos *domain.Position) error {
	const query = `UPDATE positions SET take_profit = ?, stop_loss = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, nullFloat(pos.TakeProfit), nullFloat(pos.StopLoss), pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position ID %s: %w: %w", pos.ID, ports.ErrUpdateFailed, err)
	}
	return r.expectOneRow(result, pos.ID)
}

// MarkClosed sets a position's status to closed.
func (r *Repository) MarkClosed(ctx context.Context, id string) error {
	const query = `UPDATE positions SET status = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, domain.StatusClosed, id)
	if err != nil {
		return fmt.Errorf("failed to close position ID %s: %w: %w", id, ports.ErrUpdateFailed, err)
	}
	if err := r.expectOneRow(result, id); err != nil {
		return err
	}
	r.logger.Debug(ctx, "Position closed", map[string]interface{}{"positionID": id})
	return nil
}

func (r *Repository) expectOneRow(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for position ID %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %s not found for update: %w", id, ports.ErrNotFound)
	}
	return nil
}

// FindByID retrieves a position by its unique ID.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Position, error) {
	const query = `
	SELECT id, symbol, entry_price, direction, take_profit, stop_loss, opened_at, status
	FROM positions
	WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Position not found by ID", map[string]interface{}{"positionID": id})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query position by ID %s: %w", id, err)
	}
	return pos, nil
}

// FindOpenBySymbol retrieves the open positions of a symbol, oldest first.
func (r *Repository) FindOpenBySymbol(ctx context.Context, symbol string) ([]*domain.Position, error) {
	const query = `
	SELECT id, symbol, entry_price, direction, take_profit, stop_loss, opened_at, status
	FROM positions
	WHERE symbol = ? AND status = ?
	ORDER BY opened_at ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindOpenBySymbol: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var takeProfit, stopLoss sql.NullFloat64
	var direction, status string
	err := s.Scan(&p.ID, &p.Symbol, &p.EntryPrice, &direction, &takeProfit, &stopLoss, &p.OpenedAt, &status)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if takeProfit.Valid {
		p.SetExit(domain.ExitTakeProfit, takeProfit.Float64)
	}
	if stopLoss.Valid {
		p.SetExit(domain.ExitStopLoss, stopLoss.Float64)
	}
	p.Direction = domain.Direction(direction)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
