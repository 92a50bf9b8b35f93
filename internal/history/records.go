package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"technotaggr/internal/services"
	"technotaggr/internal/session"
)

// Session is one ledger row.
type Session struct {
	ID              string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	InputDirectory  string    `json:"input_directory"`
	OutputDirectory string    `json:"output_directory"`
	ModelsDirectory string    `json:"models_directory,omitempty"`
	ResultsPath     string    `json:"results_path,omitempty"`
	TotalFiles      int       `json:"total_files"`
	SuccessfulFiles int       `json:"successful_files"`
	FailedFiles     int       `json:"failed_files"`
	Classifiers     []string  `json:"classifiers"`
	Postprocessed   bool      `json:"postprocessed"`
	FailureCount    int       `json:"failure_count"`
	RecordedAt      time.Time `json:"recorded_at"`
}

const sessionColumns = `s.id, s.started_at, s.input_directory, s.output_directory, s.models_directory,
	s.results_path, s.total_files, s.successful_files, s.failed_files, s.classifiers_json,
	s.postprocessed, s.recorded_at,
	(SELECT COUNT(1) FROM failures f WHERE f.session_id = s.id)`

// RecordSession stores doc and its failures. Recording a session id again
// replaces the earlier row and failure list.
func (s *Store) RecordSession(ctx context.Context, doc *session.Document, resultsPath string) error {
	ctx = ensureContext(ctx)
	if doc == nil || strings.TrimSpace(doc.SessionID) == "" {
		return services.Wrap(services.ErrValidation, "history", "record", "session id is required", nil)
	}
	classifiers, err := json.Marshal(nonNil(doc.ClassifiersUsed))
	if err != nil {
		return fmt.Errorf("encode classifiers: %w", err)
	}
	postprocessed := false
	for _, r := range doc.Results {
		if r.BPM > 0 {
			postprocessed = true
			break
		}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin record tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM failures WHERE session_id = ?", doc.SessionID); err != nil {
			return fmt.Errorf("clear failures: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO sessions (
			id, started_at, input_directory, output_directory, models_directory, results_path,
			total_files, successful_files, failed_files, classifiers_json, postprocessed, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at = excluded.started_at,
			input_directory = excluded.input_directory,
			output_directory = excluded.output_directory,
			models_directory = excluded.models_directory,
			results_path = excluded.results_path,
			total_files = excluded.total_files,
			successful_files = excluded.successful_files,
			failed_files = excluded.failed_files,
			classifiers_json = excluded.classifiers_json,
			postprocessed = excluded.postprocessed,
			recorded_at = excluded.recorded_at`,
			doc.SessionID,
			doc.SessionTimestamp,
			doc.InputDirectory,
			doc.OutputDirectory,
			nullableString(doc.ModelsDirectory),
			nullableString(resultsPath),
			doc.TotalFiles,
			doc.SuccessfulFiles,
			doc.FailedFiles,
			string(classifiers),
			boolToInt(postprocessed),
			now,
		); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO failures
			(session_id, audio_file, classifier, backbone, kind, message) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare failure insert: %w", err)
		}
		defer stmt.Close()
		for _, f := range doc.Failures {
			if _, err := stmt.ExecContext(ctx, doc.SessionID, f.AudioFile,
				nullableString(f.Classifier), nullableString(f.Backbone), f.Kind, f.Message); err != nil {
				return fmt.Errorf("insert failure: %w", err)
			}
		}
		return tx.Commit()
	})
}

// Recent returns up to limit sessions, newest first. A limit <= 0 returns
// every session.
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + sessionColumns + " FROM sessions s ORDER BY s.started_at DESC, s.recorded_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Get returns the session whose id equals or uniquely starts with id.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, services.Wrap(services.ErrValidation, "history", "get", "session id is required", nil)
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions s WHERE s.id = ?", id)
	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Session{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions s WHERE substr(s.id, 1, ?) = ? LIMIT 2", len(id), id)
	if err != nil {
		return Session{}, fmt.Errorf("query session prefix: %w", err)
	}
	defer rows.Close()
	var matches []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return Session{}, err
		}
		matches = append(matches, sess)
	}
	if err := rows.Err(); err != nil {
		return Session{}, err
	}
	switch len(matches) {
	case 0:
		return Session{}, services.Wrap(services.ErrNotFound, "history", "get", "no session "+id, nil)
	case 1:
		return matches[0], nil
	default:
		return Session{}, services.Wrap(services.ErrValidation, "history", "get",
			fmt.Sprintf("session prefix %q is ambiguous", id), nil)
	}
}

// Failures lists the failures recorded for a session in insertion order.
func (s *Store) Failures(ctx context.Context, sessionID string) ([]session.Failure, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT audio_file, classifier, backbone, kind, message
		FROM failures WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	out := []session.Failure{}
	for rows.Next() {
		var (
			f          session.Failure
			classifier sql.NullString
			backbone   sql.NullString
		)
		if err := rows.Scan(&f.AudioFile, &classifier, &backbone, &f.Kind, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.Classifier = classifier.String
		f.Backbone = backbone.String
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (Session, error) {
	var (
		sess          Session
		startedRaw    string
		modelsDir     sql.NullString
		resultsPath   sql.NullString
		classifiers   string
		postprocessed int
		recordedRaw   string
	)
	if err := scanner.Scan(
		&sess.ID,
		&startedRaw,
		&sess.InputDirectory,
		&sess.OutputDirectory,
		&modelsDir,
		&resultsPath,
		&sess.TotalFiles,
		&sess.SuccessfulFiles,
		&sess.FailedFiles,
		&classifiers,
		&postprocessed,
		&recordedRaw,
		&sess.FailureCount,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.ModelsDirectory = modelsDir.String
	sess.ResultsPath = resultsPath.String
	sess.Postprocessed = postprocessed != 0
	if err := json.Unmarshal([]byte(classifiers), &sess.Classifiers); err != nil {
		return Session{}, fmt.Errorf("decode classifiers for %s: %w", sess.ID, err)
	}
	if t, err := parseTimeString(startedRaw); err == nil {
		sess.StartedAt = t
	}
	if t, err := parseTimeString(recordedRaw); err == nil {
		sess.RecordedAt = t
	}
	return sess, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
