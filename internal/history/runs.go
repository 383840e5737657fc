package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"autocheck/internal/checkin"
)

// Fixed-width layout so lexical order in SQLite matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const runColumns = "id, trigger_source, started_at, finished_at, succeeded, failed, notify_attempted, notify_delivered, notify_error, summary"

// Record inserts run and its outcomes in one transaction.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin record tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID,
			run.Trigger,
			formatTime(run.StartedAt),
			formatTime(run.FinishedAt),
			run.Succeeded,
			run.Failed,
			boolToInt(run.NotifyAttempted),
			boolToInt(run.NotifyDelivered),
			nullableString(run.NotifyError),
			nullableString(run.Summary),
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for i, outcome := range run.Outcomes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO outcomes (run_id, position, account_name, location_name, status, detail, class, attempts)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID,
				i,
				outcome.AccountName,
				outcome.LocationName,
				string(outcome.Status),
				nullableString(outcome.Detail),
				nullableString(string(outcome.Class)),
				outcome.Attempts,
			); err != nil {
				return fmt.Errorf("insert outcome %d: %w", i, err)
			}
		}
		return tx.Commit()
	})
}

// Recent returns up to limit runs, newest first, without outcomes.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run with its outcomes. ok is false when id is unknown.
func (s *Store) Get(ctx context.Context, id string) (Run, bool, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("get run: %w", err)
	}
	outcomes, err := s.Outcomes(ctx, id)
	if err != nil {
		return Run{}, false, err
	}
	run.Outcomes = outcomes
	return run, true, nil
}

// Outcomes returns the outcomes of a run in declaration order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]checkin.Outcome, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_name, location_name, status, detail, class, attempts
         FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []checkin.Outcome
	for rows.Next() {
		var (
			outcome checkin.Outcome
			status  string
			detail  sql.NullString
			class   sql.NullString
		)
		if err := rows.Scan(&outcome.AccountName, &outcome.LocationName, &status, &detail, &class, &outcome.Attempts); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcome.Status = checkin.Status(status)
		outcome.Detail = detail.String
		outcome.Class = servicesClass(class.String)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

// Prune keeps the newest keep runs and deletes the rest. keep <= 0 disables
// pruning. It returns the number of runs removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM runs WHERE id NOT IN (
                SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
             )`, keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}

// Count returns the number of stored runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run         Run
		startedRaw  string
		finishedRaw string
		attempted   int
		delivered   int
		notifyErr   sql.NullString
		summary     sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Trigger,
		&startedRaw,
		&finishedRaw,
		&run.Succeeded,
		&run.Failed,
		&attempted,
		&delivered,
		&notifyErr,
		&summary,
	); err != nil {
		return Run{}, err
	}
	run.NotifyAttempted = attempted != 0
	run.NotifyDelivered = delivered != 0
	run.NotifyError = notifyErr.String
	run.Summary = summary.String
	if t, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = t
	}
	if t, err := parseTimeString(finishedRaw); err == nil {
		run.FinishedAt = t
	}
	return run, nil
}
