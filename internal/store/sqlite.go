package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps history in an embedded file-backed database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at the given location.
// DSN format:
//   - "sqlite:///path/to/history.db"
//   - "/path/to/history.db" (without prefix)
//   - ":memory:" (in-memory database)
func NewSQLite(dsn string) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection serializes writers; sqlite works best that way
	// and it keeps the task/probe pair invisible until commit.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return s, nil
}

// EnsureSchema creates the two history tables when absent. Safe to call on
// every startup.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS historic_tasks(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_label TEXT NOT NULL DEFAULT '',
			task_success INTEGER NOT NULL DEFAULT 0,
			start_time INTEGER NOT NULL,
			finish_time INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS historic_task_probes(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NOT NULL REFERENCES historic_tasks(id),
			kind TEXT NOT NULL DEFAULT 'source',
			abspath TEXT NOT NULL,
			basename TEXT NOT NULL,
			size TEXT NOT NULL DEFAULT '0'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_probes_task_kind ON historic_task_probes(task_id, kind);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &StorageError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}

func (s *SQLiteStore) CreateTask(ctx context.Context, label string, startTime time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO historic_tasks(task_label, task_success, start_time) VALUES(?, 0, ?)`,
		label, startTime.Unix())
	if err != nil {
		return 0, &StorageError{Op: "create task", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &StorageError{Op: "create task", Err: err}
	}
	return id, nil
}

func (s *SQLiteStore) CreateProbe(ctx context.Context, taskID int64, kind Kind, abspath string, size int64) (int64, error) {
	if size < 0 {
		return 0, &StorageError{Op: "create probe", Err: fmt.Errorf("negative size %d", size)}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO historic_task_probes(task_id, kind, abspath, basename, size) VALUES(?, ?, ?, ?, ?)`,
		taskID, string(kind), abspath, filepath.Base(abspath), strconv.FormatInt(size, 10))
	if err != nil {
		return 0, &StorageError{Op: "create probe", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &StorageError{Op: "create probe", Err: err}
	}
	return id, nil
}

func (s *SQLiteStore) SaveSource(ctx context.Context, abspath string, size int64, startTime time.Time) (int64, error) {
	if size < 0 {
		return 0, &StorageError{Op: "save source", Err: fmt.Errorf("negative size %d", size)}
	}
	basename := filepath.Base(abspath)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StorageError{Op: "save source", Err: err}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO historic_tasks(task_label, task_success, start_time) VALUES(?, 0, ?)`,
		basename, startTime.Unix())
	if err != nil {
		_ = tx.Rollback()
		return 0, &StorageError{Op: "save source: create task", Err: err}
	}
	taskID, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return 0, &StorageError{Op: "save source: create task", Err: err}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO historic_task_probes(task_id, kind, abspath, basename, size) VALUES(?, 'source', ?, ?, ?)`,
		taskID, abspath, basename, strconv.FormatInt(size, 10)); err != nil {
		// The task row is kept even when its probe insert fails, matching
		// the historical on-disk behavior. Callers must treat the error as
		// fatal for the save and never attach destination data to the id.
		_ = tx.Commit()
		return 0, &StorageError{Op: "save source: create probe", Err: err}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return 0, &StorageError{Op: "save source: commit", Err: err}
	}
	return taskID, nil
}

func (s *SQLiteStore) CompleteTask(ctx context.Context, taskID int64, finishTime time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE historic_tasks SET task_success = 1, finish_time = ? WHERE id = ?`,
		finishTime.Unix(), taskID)
	if err != nil {
		return &StorageError{Op: "complete task", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &StorageError{Op: "complete task", Err: err}
	}
	if n == 0 {
		// First reference to this id materializes the row.
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO historic_tasks(id, task_label, task_success, start_time, finish_time) VALUES(?, '', 1, ?, ?)`,
			taskID, finishTime.Unix(), finishTime.Unix()); err != nil {
			return &StorageError{Op: "complete task", Err: err}
		}
	}
	return nil
}

func (s *SQLiteStore) TaskCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM historic_tasks`).Scan(&n); err != nil {
		return 0, &StorageError{Op: "task count", Err: err}
	}
	return n, nil
}

func (s *SQLiteStore) ListDestinations(ctx context.Context, q ListQuery) ([]ListRow, int64, error) {
	orderExpr, err := sqlOrderExpr(q.Sort, "t", "p")
	if err != nil {
		return nil, 0, err
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}

	base := ` FROM historic_task_probes p
		JOIN historic_tasks t ON p.task_id = t.id AND p.kind = 'destination'`
	var args []any
	where := ""
	if q.Search != "" {
		where = ` WHERE t.task_label LIKE ?`
		args = append(args, "%"+q.Search+"%")
	}

	var filtered int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+base+where, args...).Scan(&filtered); err != nil {
		return nil, 0, &StorageError{Op: "list destinations: count", Err: err}
	}

	stmt := `SELECT p.id, p.basename, p.abspath, t.task_success, t.start_time, t.finish_time` +
		base + where + ` ORDER BY ` + orderExpr + ` ` + dir
	if q.Limit > 0 {
		stmt += ` LIMIT ? OFFSET ?`
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, 0, &StorageError{Op: "list destinations", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []ListRow
	for rows.Next() {
		var (
			r      ListRow
			start  int64
			finish sql.NullInt64
		)
		if err := rows.Scan(&r.ProbeID, &r.Basename, &r.Abspath, &r.Success, &start, &finish); err != nil {
			return nil, 0, &StorageError{Op: "list destinations: scan", Err: err}
		}
		r.StartTime = time.Unix(start, 0)
		if finish.Valid {
			r.FinishTime = sql.NullTime{Time: time.Unix(finish.Int64, 0), Valid: true}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &StorageError{Op: "list destinations", Err: err}
	}
	return out, filtered, nil
}

func (s *SQLiteStore) ProbeDetail(ctx context.Context, probeID int64) ([]Probe, error) {
	var taskID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT task_id FROM historic_task_probes WHERE id = ?`, probeID).Scan(&taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "probe detail", Err: err}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, kind, abspath, basename, size FROM historic_task_probes
		 WHERE (task_id = ? AND kind = 'source') OR id = ?`, taskID, probeID)
	if err != nil {
		return nil, &StorageError{Op: "probe detail", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []Probe
	for rows.Next() {
		p, err := scanProbe(rows)
		if err != nil {
			return nil, &StorageError{Op: "probe detail: scan", Err: err}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "probe detail", Err: err}
	}
	return out, nil
}

func (s *SQLiteStore) SizeTotals(ctx context.Context) (Totals, error) {
	sum := func(kind Kind) (*int64, error) {
		var total sql.NullInt64
		err := s.db.QueryRowContext(ctx,
			`SELECT SUM(CAST(p.size AS INTEGER)) FROM historic_task_probes p
			 JOIN historic_tasks t ON p.task_id = t.id
			 WHERE p.kind = ? AND t.task_success = 1`, string(kind)).Scan(&total)
		if err != nil {
			return nil, &StorageError{Op: "size totals", Err: err}
		}
		if !total.Valid {
			return nil, nil
		}
		v := total.Int64
		return &v, nil
	}

	var t Totals
	var err error
	if t.Source, err = sum(KindSource); err != nil {
		return Totals{}, err
	}
	if t.Destination, err = sum(KindDestination); err != nil {
		return Totals{}, err
	}
	return t, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProbe(r rowScanner) (Probe, error) {
	var (
		p       Probe
		kind    string
		sizeStr string
	)
	if err := r.Scan(&p.ID, &p.TaskID, &kind, &p.Abspath, &p.Basename, &sizeStr); err != nil {
		return Probe{}, err
	}
	p.Kind = Kind(kind)
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return Probe{}, fmt.Errorf("parse probe size %q: %w", sizeStr, err)
	}
	p.Size = size
	return p, nil
}

// sqlOrderExpr routes a sort column to the correct joined table alias.
func sqlOrderExpr(col SortColumn, taskAlias, probeAlias string) (string, error) {
	entity, ok := col.Route()
	if !ok {
		return "", &StorageError{Op: "list destinations", Err: fmt.Errorf("unsortable column %q", col)}
	}
	if entity == EntityProbe {
		return probeAlias + "." + string(col), nil
	}
	return taskAlias + "." + string(col), nil
}
