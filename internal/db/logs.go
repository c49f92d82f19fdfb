package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/banshee-data/dmxcam/internal/capture"
	"github.com/banshee-data/dmxcam/internal/upload"
)

var (
	_ capture.Log = (*DB)(nil)
	_ upload.Log  = (*DB)(nil)
)

// RecordCapture appends a stored picture to the capture log.
func (db *DB) RecordCapture(ctx context.Context, r capture.Result) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO captures (sequence, name, size, captured_at, upload_started)
		 VALUES (?, ?, ?, ?, ?)`,
		int64(r.Sequence), r.Name, r.Size, toNanos(r.CapturedAt), r.UploadStarted,
	)
	if err != nil {
		return fmt.Errorf("record capture %s: %w", r.Name, err)
	}
	return nil
}

// RecentCaptures returns up to limit captures, newest first.
func (db *DB) RecentCaptures(ctx context.Context, limit int) ([]capture.Result, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT sequence, name, size, captured_at, upload_started
		 FROM captures ORDER BY sequence DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []capture.Result
	for rows.Next() {
		var (
			r   capture.Result
			seq int64
			at  sql.NullInt64
		)
		if err := rows.Scan(&seq, &r.Name, &r.Size, &at, &r.UploadStarted); err != nil {
			return nil, err
		}
		r.Sequence = uint32(seq)
		r.CapturedAt = fromNanos(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordUploadStart inserts an in-flight upload task.
func (db *DB) RecordUploadStart(ctx context.Context, t upload.Task) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO uploads (id, artifact, remote_path, state, size, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Artifact, t.RemotePath, t.State.String(), t.Size, toNanos(t.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("record upload %s: %w", t.ID, err)
	}
	return nil
}

// RecordUploadFinish stores the outcome of an upload task.
func (db *DB) RecordUploadFinish(ctx context.Context, t upload.Task) error {
	res, err := db.ExecContext(ctx,
		`UPDATE uploads SET state = ?, url = ?, error = ?, finished_at = ? WHERE id = ?`,
		t.State.String(), nullString(t.URL), nullString(t.Error), toNanos(t.FinishedAt), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update upload %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update upload %s: no such task", t.ID)
	}
	return nil
}

// RecentUploads returns up to limit upload tasks, newest first.
func (db *DB) RecentUploads(ctx context.Context, limit int) ([]upload.Task, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, artifact, remote_path, state, size, url, error, started_at, finished_at
		 FROM uploads ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []upload.Task
	for rows.Next() {
		var (
			t                 upload.Task
			state             string
			url, errText      sql.NullString
			started, finished sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.Artifact, &t.RemotePath, &state, &t.Size, &url, &errText, &started, &finished); err != nil {
			return nil, err
		}
		if t.State, err = upload.ParseState(state); err != nil {
			return nil, err
		}
		t.URL = url.String
		t.Error = errText.String
		t.StartedAt = fromNanos(started)
		t.FinishedAt = fromNanos(finished)
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
