package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Admission is the outcome of an admission decision for a start request.
type Admission struct {
	// Admitted is true when a new run may begin.
	Admitted bool
	// SummaryID is the row id reserved for the run when admitted.
	SummaryID int64
	// Reason explains a rejection ("already exists", "already in progress").
	Reason string
	// Existing carries the current row on an "already exists" rejection.
	Existing *Summary
}

// Completion carries the final artifacts of a successful run.
type Completion struct {
	Summary               string
	Transcript            string
	ModelUsed             string
	AudioDurationSeconds  float64
	ProcessingTimeSeconds float64
}

// Stats aggregates the store contents.
type Stats struct {
	Total                  int            `json:"total"`
	ByStatus               map[Status]int `json:"by_status"`
	VideosWithAudio        int            `json:"videos_with_audio"`
	TotalProcessingSeconds float64        `json:"total_processing_seconds"`
	AvgProcessingSeconds   float64        `json:"avg_processing_seconds"`
}

const summaryColumns = `id, video_path, status, summary, transcript, model_used,
	audio_duration_seconds, processing_time_seconds, error_message, generated_at`

// Admit decides whether a new summarization run may start for videoPath.
// The decision and any row creation or reset happen in one transaction so
// concurrent starts for the same video admit exactly one run.
func (s *Store) Admit(ctx context.Context, videoPath string, force bool) (Admission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Admission{}, fmt.Errorf("store: begin admit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)

	row := tx.QueryRowContext(ctx,
		"SELECT "+summaryColumns+" FROM summaries WHERE video_path = ?", videoPath)
	existing, err := scanSummary(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			"INSERT INTO summaries (video_path, status, generated_at) VALUES (?, ?, ?)",
			videoPath, StatusPending, now)
		if err != nil {
			return Admission{}, fmt.Errorf("store: insert summary: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return Admission{}, err
		}
		if err := tx.Commit(); err != nil {
			return Admission{}, err
		}
		return Admission{Admitted: true, SummaryID: id}, nil
	case err != nil:
		return Admission{}, fmt.Errorf("store: admit lookup: %w", err)
	}

	if !force {
		switch existing.Status {
		case StatusCompleted:
			return Admission{Reason: "already exists", Existing: &existing}, nil
		case StatusPending, StatusProcessing:
			return Admission{Reason: "already in progress"}, nil
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE summaries SET status = ?, error_message = NULL, generated_at = ? WHERE id = ?",
		StatusPending, now, existing.ID)
	if err != nil {
		return Admission{}, fmt.Errorf("store: reset summary: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Admission{}, err
	}
	return Admission{Admitted: true, SummaryID: existing.ID}, nil
}

// MarkProcessing transitions a summary row to processing.
func (s *Store) MarkProcessing(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusProcessing, "")
}

// MarkFailure transitions a summary row to failed or no_audio with the
// given error message.
func (s *Store) MarkFailure(ctx context.Context, id int64, status Status, errMsg string) error {
	if status != StatusFailed && status != StatusNoAudio {
		return fmt.Errorf("store: invalid failure status %q", status)
	}
	return s.setStatus(ctx, id, status, errMsg)
}

func (s *Store) setStatus(ctx context.Context, id int64, status Status, errMsg string) error {
	var msg any
	if errMsg != "" {
		msg = errMsg
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE summaries SET status = ?, error_message = ?, generated_at = ? WHERE id = ?",
		status, msg, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete finalizes a successful run: the summary row is updated to
// completed and the next dense version is appended, atomically.
func (s *Store) Complete(ctx context.Context, id int64, c Completion) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin complete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)

	var videoPath string
	if err := tx.QueryRowContext(ctx,
		"SELECT video_path FROM summaries WHERE id = ?", id).Scan(&videoPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("store: complete lookup: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE summaries SET
			status = ?, summary = ?, transcript = ?, model_used = ?,
			audio_duration_seconds = ?, processing_time_seconds = ?,
			error_message = NULL, generated_at = ?
		WHERE id = ?`,
		StatusCompleted, c.Summary, c.Transcript, c.ModelUsed,
		c.AudioDurationSeconds, c.ProcessingTimeSeconds, now, id)
	if err != nil {
		return 0, fmt.Errorf("store: update summary: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) + 1 FROM summary_versions WHERE video_path = ?",
		videoPath).Scan(&next); err != nil {
		return 0, fmt.Errorf("store: next version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO summary_versions
			(video_path, version, summary, transcript, model_used, processing_time_seconds, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		videoPath, next, c.Summary, c.Transcript, c.ModelUsed, c.ProcessingTimeSeconds, now)
	if err != nil {
		return 0, fmt.Errorf("store: append version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// GetByPath returns the summary for videoPath using tolerant matching:
// exact path first, then suffix match on the final path component, so
// lookups survive a relocated mount root.
func (s *Store) GetByPath(ctx context.Context, videoPath string) (Summary, error) {
	for _, q := range lookupQueries(videoPath) {
		row := s.db.QueryRowContext(ctx,
			"SELECT "+summaryColumns+" FROM summaries WHERE "+q.where+" LIMIT 1", q.arg)
		summary, err := scanSummary(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return Summary{}, fmt.Errorf("store: get by path: %w", err)
		}
		return summary, nil
	}
	return Summary{}, ErrNotFound
}

// GetVersion returns a specific version row with tolerant path matching.
func (s *Store) GetVersion(ctx context.Context, videoPath string, version int) (Version, error) {
	for _, q := range lookupQueries(videoPath) {
		row := s.db.QueryRowContext(ctx, `
			SELECT video_path, version, summary, transcript, model_used,
				processing_time_seconds, generated_at
			FROM summary_versions WHERE `+q.where+` AND version = ? LIMIT 1`,
			q.arg, version)
		v, err := scanVersion(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return Version{}, fmt.Errorf("store: get version: %w", err)
		}
		return v, nil
	}
	return Version{}, ErrNotFound
}

// ListVersions returns version descriptors for videoPath, newest first,
// with tolerant path matching. An empty list with a nil error means the
// path has no versions.
func (s *Store) ListVersions(ctx context.Context, videoPath string) ([]VersionInfo, error) {
	for _, q := range lookupQueries(videoPath) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT version, model_used, processing_time_seconds, generated_at
			FROM summary_versions WHERE `+q.where+` ORDER BY version DESC`, q.arg)
		if err != nil {
			return nil, fmt.Errorf("store: list versions: %w", err)
		}

		var out []VersionInfo
		for rows.Next() {
			var (
				info  VersionInfo
				model sql.NullString
				secs  sql.NullFloat64
			)
			if err := rows.Scan(&info.Version, &model, &secs, &info.GeneratedAt); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("store: scan version: %w", err)
			}
			info.ModelUsed = model.String
			if secs.Valid {
				v := secs.Float64
				info.ProcessingTimeSeconds = &v
			}
			out = append(out, info)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()

		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, nil
}

// BackfillInitialVersion inserts version 1 from the summary row when a
// completed summary predates the version history. It returns true when a
// row was inserted.
func (s *Store) BackfillInitialVersion(ctx context.Context, videoPath string) (bool, error) {
	summary, err := s.GetByPath(ctx, videoPath)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if summary.Status != StatusCompleted || summary.Summary == "" {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO summary_versions
			(video_path, version, summary, transcript, model_used, processing_time_seconds, generated_at)
		SELECT ?, 1, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM summary_versions WHERE video_path = ?)`,
		summary.VideoPath, summary.Summary, summary.Transcript, summary.ModelUsed,
		summary.ProcessingTimeSeconds, summary.GeneratedAt.Format(time.RFC3339),
		summary.VideoPath)
	if err != nil {
		return false, fmt.Errorf("store: backfill version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes the summary and all its versions. It returns false when
// no summary matched.
func (s *Store) Delete(ctx context.Context, videoPath string) (bool, error) {
	summary, err := s.GetByPath(ctx, videoPath)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM summary_versions WHERE video_path = ?", summary.VideoPath); err != nil {
		return false, fmt.Errorf("store: delete versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM summaries WHERE id = ?", summary.ID); err != nil {
		return false, fmt.Errorf("store: delete summary: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// List returns summaries, optionally filtered by status, newest first.
// limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, status Status, limit int) ([]Summary, error) {
	query := "SELECT " + summaryColumns + " FROM summaries"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY generated_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan summary: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Stats aggregates per-status counts and processing time over the store.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM summaries GROUP BY status")
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			status Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	var (
		withAudio int
		totalSecs sql.NullFloat64
		avgSecs   sql.NullFloat64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM summaries WHERE audio_duration_seconds IS NOT NULL),
			SUM(processing_time_seconds),
			AVG(processing_time_seconds)
		FROM summaries WHERE status = ?`, StatusCompleted).
		Scan(&withAudio, &totalSecs, &avgSecs)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats aggregate: %w", err)
	}

	stats.VideosWithAudio = withAudio
	stats.TotalProcessingSeconds = totalSecs.Float64
	stats.AvgProcessingSeconds = avgSecs.Float64
	return stats, nil
}

// lookupQuery is one step of the tolerant path match.
type lookupQuery struct {
	where string
	arg   string
}

// lookupQueries builds the tolerant match sequence for a path: exact
// match, then "/<basename>" suffix, then "\<basename>" suffix.
func lookupQueries(videoPath string) []lookupQuery {
	queries := []lookupQuery{{where: "video_path = ?", arg: videoPath}}

	base := filepath.Base(strings.ReplaceAll(videoPath, "\\", "/"))
	if base != "" && base != "." && base != "/" {
		queries = append(queries,
			lookupQuery{where: "video_path LIKE ?", arg: "%/" + base},
			lookupQuery{where: "video_path LIKE ?", arg: `%\` + base},
		)
	}
	return queries
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (Summary, error) {
	var (
		s            Summary
		summary      sql.NullString
		transcript   sql.NullString
		model        sql.NullString
		audioSecs    sql.NullFloat64
		procSecs     sql.NullFloat64
		errMsg       sql.NullString
		generatedRaw string
	)
	err := row.Scan(&s.ID, &s.VideoPath, &s.Status, &summary, &transcript, &model,
		&audioSecs, &procSecs, &errMsg, &generatedRaw)
	if err != nil {
		return Summary{}, err
	}

	s.Summary = summary.String
	s.Transcript = transcript.String
	s.ModelUsed = model.String
	s.ErrorMessage = errMsg.String
	if audioSecs.Valid {
		v := audioSecs.Float64
		s.AudioDurationSeconds = &v
	}
	if procSecs.Valid {
		v := procSecs.Float64
		s.ProcessingTimeSeconds = &v
	}
	s.GeneratedAt, _ = time.Parse(time.RFC3339, generatedRaw)
	return s, nil
}

func scanVersion(row rowScanner) (Version, error) {
	var (
		v            Version
		summary      sql.NullString
		transcript   sql.NullString
		model        sql.NullString
		procSecs     sql.NullFloat64
		generatedRaw string
	)
	err := row.Scan(&v.VideoPath, &v.Version, &summary, &transcript, &model,
		&procSecs, &generatedRaw)
	if err != nil {
		return Version{}, err
	}

	v.Summary = summary.String
	v.Transcript = transcript.String
	v.ModelUsed = model.String
	if procSecs.Valid {
		f := procSecs.Float64
		v.ProcessingTimeSeconds = &f
	}
	v.GeneratedAt, _ = time.Parse(time.RFC3339, generatedRaw)
	return v, nil
}
