package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/banshee-data/jump.report/internal/jump/result"
)

var ErrNotFound = errors.New("result not found")

// StoredResult is a Completed Result with its storage identity.
type StoredResult struct {
	ID        string         `json:"id"`
	AthleteID string         `json:"athlete_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Result    *result.Result `json:"result"`
}

// ResultSummary is the list view of a stored result; it is read from the
// indexed columns without decoding the payload.
type ResultSummary struct {
	ID           string    `json:"id"`
	AthleteID    string    `json:"athlete_id,omitempty"`
	TestType     string    `json:"test_type"`
	SubTestCount int       `json:"sub_test_count"`
	JumpCount    int       `json:"jump_count"`
	HeadlineCM   float64   `json:"headline_cm"`
	CreatedAt    time.Time `json:"created_at"`
}

// SaveResult inserts r, or replaces the stored result with the same ID.
// The full result is kept as a msgpack payload and every jump is also
// written to result_jumps for ad-hoc SQL.
func (db *DB) SaveResult(ctx context.Context, r StoredResult) error {
	if r.ID == "" {
		return errors.New("save result: empty id")
	}
	if r.Result == nil {
		return errors.New("save result: nil result")
	}
	if err := r.Result.Validate(); err != nil {
		return fmt.Errorf("save result %s: %w", r.ID, err)
	}
	payload, err := msgpack.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", r.ID, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM result_jumps WHERE result_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clear jumps of %s: %w", r.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO results (result_id, athlete_id, test_type, sub_test_count, jump_count, headline_cm, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (result_id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			test_type = excluded.test_type,
			sub_test_count = excluded.sub_test_count,
			jump_count = excluded.jump_count,
			headline_cm = excluded.headline_cm,
			created_at = excluded.created_at,
			payload = excluded.payload`,
		r.ID,
		r.AthleteID,
		string(r.Result.Type),
		len(r.Result.SubTests),
		r.Result.JumpCount(),
		r.Result.HeadlineCM(),
		r.CreatedAt.UnixNano(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO result_jumps (result_id, sub_test, jump_index, flight_s, floor_s, height_cm, excluded)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for sub, jumps := range r.Result.SubTests {
		for i, j := range jumps {
			var floor sql.NullFloat64
			if j.FloorS != nil {
				floor = sql.NullFloat64{Float64: *j.FloorS, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, r.ID, sub, i, j.FlightS, floor, j.HeightCM, j.Excluded); err != nil {
				return fmt.Errorf("insert jump %d/%d of %s: %w", sub, i, r.ID, err)
			}
		}
	}

	return tx.Commit()
}

// GetResult loads one result. It returns ErrNotFound for an unknown id.
func (db *DB) GetResult(ctx context.Context, id string) (*StoredResult, error) {
	var (
		stored  StoredResult
		created int64
		payload []byte
	)
	err := db.QueryRowContext(ctx,
		`SELECT result_id, athlete_id, created_at, payload FROM results WHERE result_id = ?`, id,
	).Scan(&stored.ID, &stored.AthleteID, &created, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", id, err)
	}

	var r result.Result
	if err := msgpack.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	stored.CreatedAt = time.Unix(0, created).UTC()
	stored.Result = &r
	return &stored, nil
}

// ListResults returns summaries, newest first. An empty athleteID lists
// every athlete; limit <= 0 means no limit.
func (db *DB) ListResults(ctx context.Context, athleteID string, limit int) ([]ResultSummary, error) {
	query := `SELECT result_id, athlete_id, test_type, sub_test_count, jump_count, headline_cm, created_at FROM results`
	var args []any
	if athleteID != "" {
		query += ` WHERE athlete_id = ?`
		args = append(args, athleteID)
	}
	query += ` ORDER BY created_at DESC, result_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	out := []ResultSummary{}
	for rows.Next() {
		var s ResultSummary
		var created int64
		if err := rows.Scan(&s.ID, &s.AthleteID, &s.TestType, &s.SubTestCount, &s.JumpCount, &s.HeadlineCM, &created); err != nil {
			return nil, err
		}
		s.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteResult removes a result and its jump rows.
func (db *DB) DeleteResult(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM results WHERE result_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete result %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// JumpRow is one row of result_jumps.
type JumpRow struct {
	ResultID  string   `json:"result_id"`
	SubTest   int      `json:"sub_test"`
	JumpIndex int      `json:"jump_index"`
	FlightS   float64  `json:"flight_s"`
	FloorS    *float64 `json:"floor_s,omitempty"`
	HeightCM  float64  `json:"height_cm"`
	Excluded  bool     `json:"excluded"`
}

// AthleteJumps returns every stored jump of an athlete in result creation
// order, for history charts.
func (db *DB) AthleteJumps(ctx context.Context, athleteID string) ([]JumpRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT j.result_id, j.sub_test, j.jump_index, j.flight_s, j.floor_s, j.height_cm, j.excluded
		FROM result_jumps j JOIN results r ON r.result_id = j.result_id
		WHERE r.athlete_id = ?
		ORDER BY r.created_at, j.result_id, j.sub_test, j.jump_index`, athleteID)
	if err != nil {
		return nil, fmt.Errorf("athlete jumps %s: %w", athleteID, err)
	}
	defer rows.Close()

	out := []JumpRow{}
	for rows.Next() {
		var j JumpRow
		var floor sql.NullFloat64
		if err := rows.Scan(&j.ResultID, &j.SubTest, &j.JumpIndex, &j.FlightS, &floor, &j.HeightCM, &j.Excluded); err != nil {
			return nil, err
		}
		if floor.Valid {
			v := floor.Float64
			j.FloorS = &v
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
