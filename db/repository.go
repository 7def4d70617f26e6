package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultListLimit applies when ListRuns is called with a non-positive limit.
const DefaultListLimit = 20

// timeLayout is fixed-width so created_at sorts and compares as text.
const timeLayout = "2006-01-02T15:04:05.000Z"

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID             string // uuid, generated by InsertRun when empty
	Model          string
	Pretrained     string
	Device         string
	Prompt         string
	NegativePrompt string
	Seed           int64
	Steps          int
	GuidanceScale  float64
	Width          int
	Height         int
	Positions      []string // captured extract positions
	OutputDir      string   // where the run was saved, empty if not saved
	DurationMS     int64
	Status         string // StatusSuccess or StatusError
	ErrorMessage   string
	CreatedAt      time.Time // set by InsertRun when zero
}

// Repository reads and writes run records.
type Repository struct {
	db *Database
}

// NewRepository creates a Repository over d.
func NewRepository(d *Database) *Repository {
	return &Repository{db: d}
}

// InsertRun stores rec and returns its id.
func (r *Repository) InsertRun(ctx context.Context, rec RunRecord) (string, error) {
	if rec.Model == "" || rec.Prompt == "" {
		return "", fmt.Errorf("%w: model and prompt are required", ErrInvalidRun)
	}
	switch rec.Status {
	case StatusSuccess, StatusError:
	default:
		return "", fmt.Errorf("%w: status %q", ErrInvalidRun, rec.Status)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	conn, release, err := r.db.conn()
	if err != nil {
		return "", err
	}
	defer release()

	_, err = conn.ExecContext(ctx, `
		INSERT INTO runs (
			id, model, pretrained, device, prompt, negative_prompt,
			seed, steps, guidance_scale, width, height, positions,
			output_dir, duration_ms, status, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Model, rec.Pretrained, rec.Device, rec.Prompt, rec.NegativePrompt,
		rec.Seed, rec.Steps, rec.GuidanceScale, rec.Width, rec.Height, strings.Join(rec.Positions, ","),
		rec.OutputDir, rec.DurationMS, rec.Status, rec.ErrorMessage, rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return rec.ID, nil
}

const selectRun = `
	SELECT id, model, pretrained, device, prompt, COALESCE(negative_prompt, ''),
		   seed, steps, guidance_scale, width, height, COALESCE(positions, ''),
		   COALESCE(output_dir, ''), duration_ms, status, COALESCE(error_message, ''),
		   created_at
	FROM runs`

// MinIDPrefix is the shortest id prefix GetRun resolves.
const MinIDPrefix = 4

// GetRun returns the run with id. When no id matches exactly, a prefix of at
// least MinIDPrefix characters selects the single run it starts.
func (r *Repository) GetRun(ctx context.Context, id string) (RunRecord, error) {
	conn, release, err := r.db.conn()
	if err != nil {
		return RunRecord{}, err
	}
	defer release()

	rec, err := scanRun(conn.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return findByPrefix(ctx, conn, id)
	}
	return rec, err
}

func findByPrefix(ctx context.Context, conn *sql.DB, prefix string) (RunRecord, error) {
	if len(prefix) < MinIDPrefix || strings.ContainsAny(prefix, `%_\`) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	}

	rows, err := conn.QueryContext(ctx, selectRun+` WHERE id LIKE ? ORDER BY id LIMIT 2`, prefix+"%")
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var found []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return RunRecord{}, err
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return RunRecord{}, fmt.Errorf("failed to iterate runs: %w", err)
	}

	switch len(found) {
	case 0:
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return found[0], nil
	default:
		return RunRecord{}, fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
}

// ListRuns returns up to limit runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	conn, release, err := r.db.conn()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.QueryContext(ctx, selectRun+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return out, nil
}

// CountRuns returns the number of stored runs.
func (r *Repository) CountRuns(ctx context.Context) (int64, error) {
	conn, release, err := r.db.conn()
	if err != nil {
		return 0, err
	}
	defer release()

	var n int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (RunRecord, error) {
	var (
		rec       RunRecord
		positions string
		createdAt string
	)
	err := s.Scan(
		&rec.ID, &rec.Model, &rec.Pretrained, &rec.Device, &rec.Prompt, &rec.NegativePrompt,
		&rec.Seed, &rec.Steps, &rec.GuidanceScale, &rec.Width, &rec.Height, &positions,
		&rec.OutputDir, &rec.DurationMS, &rec.Status, &rec.ErrorMessage,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, err
		}
		return RunRecord{}, fmt.Errorf("failed to scan run: %w", err)
	}
	if positions != "" {
		rec.Positions = strings.Split(positions, ",")
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return rec, nil
}
