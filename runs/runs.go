// Package runs persists crawl runs and the records they collected in
// SQLite so they can be listed and served after the crawl exits.
package runs

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pevans/newscrawl/newsfeed"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunFinished = errors.New("run already finished")
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Store manages crawl runs using SQLite.
type Store struct {
	db *sql.DB
}

// Run is one execution of the crawler.
type Run struct {
	RunID        uuid.UUID  `json:"run_id"`
	Keyword      string     `json:"keyword"`
	Category     string     `json:"category,omitempty"`
	MonthsWindow int        `json:"months_window"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Pages        int        `json:"pages"`
	RecordCount  int        `json:"record_count"`
	StopReason   *string    `json:"stop_reason,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
}

// IsFinished returns true once FinishRun has been called.
func (r *Run) IsFinished() bool {
	return r.FinishedAt != nil
}

// RunFilter represents filtering options for listing runs.
type RunFilter struct {
	Status  *string
	Keyword *string
	Limit   int
	Offset  int
}

// NewStore opens or creates the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		keyword TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		months_window INTEGER NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		pages INTEGER NOT NULL DEFAULT 0,
		stop_reason TEXT,
		last_error TEXT
	);

	CREATE TABLE IF NOT EXISTS records (
		record_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		image TEXT NOT NULL,
		published_state TEXT NOT NULL,
		published_at TEXT,
		published_raw TEXT,
		search_phrase_matches INTEGER,
		contains_money INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id, position);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records the start of a crawl.
func (s *Store) CreateRun(keyword, category string, monthsWindow int) (*Run, error) {
	run := &Run{
		RunID:        uuid.New(),
		Keyword:      keyword,
		Category:     category,
		MonthsWindow: monthsWindow,
		Status:       StatusRunning,
		StartedAt:    time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, keyword, category, months_window, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.RunID.String(),
		run.Keyword,
		run.Category,
		run.MonthsWindow,
		run.Status,
		formatTime(&run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	return run, nil
}

// FinishRun closes a run. A nil crawlErr marks it completed with the
// result's page count and stop reason; otherwise it is marked failed.
func (s *Store) FinishRun(runID uuid.UUID, result *newsfeed.AggregateResult, crawlErr error) error {
	now := time.Now()
	status := StatusCompleted
	var pages int
	var stopReason, lastError any
	if result != nil {
		pages = result.Pages
		stopReason = string(result.StopReason)
	}
	if crawlErr != nil {
		status = StatusFailed
		lastError = crawlErr.Error()
	}

	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, finished_at = ?, pages = ?, stop_reason = ?, last_error = ?
		WHERE run_id = ? AND finished_at IS NULL
	`, status, formatTime(&now), pages, stopReason, lastError, runID.String())
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetRun(runID); err != nil {
			return err
		}
		return ErrRunFinished
	}

	return nil
}

// AddRecords appends records to a run, keeping their order after any
// records already stored.
func (s *Store) AddRecords(runID uuid.UUID, records []newsfeed.NewsRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow("SELECT COUNT(*) FROM runs WHERE run_id = ?", runID.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to query run: %w", err)
	}
	if exists == 0 {
		return ErrRunNotFound
	}

	var offset int
	err = tx.QueryRow("SELECT COUNT(*) FROM records WHERE run_id = ?", runID.String()).Scan(&offset)
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO records (
			record_id, run_id, position, url, title, description, image,
			published_state, published_at, published_raw,
			search_phrase_matches, contains_money
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, record := range records {
		id := record.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		var publishedAt, publishedRaw any
		switch record.PublishedAt.State {
		case newsfeed.TimestampParsed:
			publishedAt = record.PublishedAt.Time.Format(time.RFC3339)
		case newsfeed.TimestampParseError:
			publishedRaw = record.PublishedAt.Raw
		}

		var matches, money any
		if record.Features != nil {
			matches = record.Features.SearchPhraseMatches
			money = record.Features.ContainsMoney
		}

		_, err := stmt.Exec(
			id.String(), runID.String(), offset+i,
			record.URL, record.Title, record.Description, record.ImageRef,
			record.PublishedAt.State.String(), publishedAt, publishedRaw,
			matches, money,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", record.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

const runColumns = `
	r.run_id, r.keyword, r.category, r.months_window, r.status,
	r.started_at, r.finished_at, r.pages, r.stop_reason, r.last_error,
	(SELECT COUNT(*) FROM records WHERE records.run_id = r.run_id)
`

type rowScanner interface {
	Scan(dest ...any) error
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(runID uuid.UUID) (*Run, error) {
	row := s.db.QueryRow("SELECT "+runColumns+" FROM runs r WHERE r.run_id = ?", runID.String())

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns lists runs, newest first.
func (s *Store) ListRuns(filter RunFilter) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs r"

	var whereClauses []string
	var args []any

	if filter.Status != nil {
		whereClauses = append(whereClauses, "r.status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Keyword != nil {
		whereClauses = append(whereClauses, "r.keyword = ?")
		args = append(args, *filter.Keyword)
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY r.started_at DESC, r.rowid DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// ListRecords returns a run's records in the order they were collected.
func (s *Store) ListRecords(runID uuid.UUID) ([]newsfeed.NewsRecord, error) {
	if _, err := s.GetRun(runID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT record_id, url, title, description, image,
		       published_state, published_at, published_raw,
		       search_phrase_matches, contains_money
		FROM records
		WHERE run_id = ?
		ORDER BY position
	`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []newsfeed.NewsRecord{}
	for rows.Next() {
		var idStr, url, title, description, image, stateStr string
		var publishedAt, publishedRaw sql.NullString
		var matches sql.NullInt64
		var money sql.NullBool

		err := rows.Scan(
			&idStr, &url, &title, &description, &image,
			&stateStr, &publishedAt, &publishedRaw,
			&matches, &money,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse record ID: %w", err)
		}
		state, err := newsfeed.ParseTimestampState(stateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse record %s: %w", idStr, err)
		}

		record := newsfeed.NewsRecord{
			ID:          id,
			URL:         url,
			Title:       title,
			Description: description,
			ImageRef:    image,
		}
		switch state {
		case newsfeed.TimestampParsed:
			// Stored with the offset it was crawled in, so the wall clock
			// matches the exported files.
			published, err := time.Parse(time.RFC3339, publishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse published time of record %s: %w", idStr, err)
			}
			record.PublishedAt = newsfeed.ParsedAt(published)
		case newsfeed.TimestampParseError:
			record.PublishedAt = newsfeed.ParseError(publishedRaw.String)
		default:
			record.PublishedAt = newsfeed.NotFound()
		}
		if matches.Valid {
			record.Features = &newsfeed.TextFeatures{
				SearchPhraseMatches: int(matches.Int64),
				ContainsMoney:       money.Bool,
			}
		}

		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

func scanRun(row rowScanner) (*Run, error) {
	var runIDStr, keyword, category, status, startedAtStr string
	var monthsWindow, pages, recordCount int
	var finishedAtStr, stopReason, lastError sql.NullString

	err := row.Scan(
		&runIDStr, &keyword, &category, &monthsWindow, &status,
		&startedAtStr, &finishedAtStr, &pages, &stopReason, &lastError,
		&recordCount,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run ID: %w", err)
	}

	run := &Run{
		RunID:        runID,
		Keyword:      keyword,
		Category:     category,
		MonthsWindow: monthsWindow,
		Status:       status,
		StartedAt:    parseTime(startedAtStr),
		Pages:        pages,
		RecordCount:  recordCount,
	}
	if finishedAtStr.Valid {
		t := parseTime(finishedAtStr.String)
		run.FinishedAt = &t
	}
	if stopReason.Valid {
		run.StopReason = &stopReason.String
	}
	if lastError.Valid {
		run.LastError = &lastError.String
	}

	return run, nil
}

// timeLayout is fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
