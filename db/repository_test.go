package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func sampleRun() RunRecord {
	return RunRecord{
		Model:         "SD-Turbo",
		Pretrained:    "stabilityai/sd-turbo",
		Device:        "cpu",
		Prompt:        "a red fox in snow",
		Seed:          1234,
		Steps:         1,
		GuidanceScale: 0,
		Width:         512,
		Height:        512,
		Positions:     []string{"mid_block", "up_blocks[0]"},
		OutputDir:     "runs/abc",
		DurationMS:    1500,
		Status:        StatusSuccess,
	}
}

func TestRepository_InsertAndGet(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()

	want := sampleRun()
	id, err := repo.InsertRun(ctx, want)
	if err != nil {
		t.Fatalf("InsertRun() error = %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("InsertRun() id %q is not a uuid: %v", id, err)
	}

	got, err := repo.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	want.ID = id
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(RunRecord{}, "CreatedAt")); diff != "" {
		t.Errorf("GetRun() mismatch (-want +got):\n%s", diff)
	}
	if time.Since(got.CreatedAt) > time.Minute {
		t.Errorf("CreatedAt = %v, want about now", got.CreatedAt)
	}
}

func TestRepository_KeepsGivenID(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	rec := sampleRun()
	rec.ID = "fixed-id"
	rec.Positions = nil
	rec.Status = StatusError
	rec.ErrorMessage = "sdruntime: failed to load model"

	id, err := repo.InsertRun(context.Background(), rec)
	if err != nil || id != "fixed-id" {
		t.Fatalf("InsertRun() = %q, %v", id, err)
	}
	got, err := repo.GetRun(context.Background(), "fixed-id")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Positions != nil || got.ErrorMessage != rec.ErrorMessage || got.Status != StatusError {
		t.Errorf("GetRun() = %+v", got)
	}
}

func TestRepository_InsertValidation(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	tests := map[string]func(*RunRecord){
		"missing model":  func(r *RunRecord) { r.Model = "" },
		"missing prompt": func(r *RunRecord) { r.Prompt = "" },
		"bad status":     func(r *RunRecord) { r.Status = "pending" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			rec := sampleRun()
			mutate(&rec)
			if _, err := repo.InsertRun(context.Background(), rec); !errors.Is(err, ErrInvalidRun) {
				t.Errorf("InsertRun() error = %v, want ErrInvalidRun", err)
			}
		})
	}
}

func TestRepository_GetRunNotFound(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	if _, err := repo.GetRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestRepository_GetRunByPrefix(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"abcd1111", "abcd2222", "ef012345"} {
		rec := sampleRun()
		rec.ID = id
		if _, err := repo.InsertRun(ctx, rec); err != nil {
			t.Fatalf("InsertRun(%s) error = %v", id, err)
		}
	}

	tests := []struct {
		prefix  string
		wantID  string
		wantErr error
	}{
		{prefix: "ef01", wantID: "ef012345"},
		{prefix: "abcd1", wantID: "abcd1111"},
		{prefix: "abcd", wantErr: ErrAmbiguousID},
		{prefix: "ef0", wantErr: ErrRunNotFound},
		{prefix: "ab%_", wantErr: ErrRunNotFound},
		{prefix: "9999", wantErr: ErrRunNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got, err := repo.GetRun(ctx, tt.prefix)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("GetRun(%q) error = %v, want %v", tt.prefix, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetRun(%q) error = %v", tt.prefix, err)
			}
			if got.ID != tt.wantID {
				t.Errorf("GetRun(%q).ID = %q, want %q", tt.prefix, got.ID, tt.wantID)
			}
		})
	}
}

func TestRepository_ListRuns(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := sampleRun()
		rec.ID = string(rune('a' + i))
		rec.Seed = int64(i)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if _, err := repo.InsertRun(ctx, rec); err != nil {
			t.Fatalf("InsertRun(%d) error = %v", i, err)
		}
	}

	runs, err := repo.ListRuns(ctx, 3)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"e", "d", "c"}, ids); diff != "" {
		t.Errorf("ListRuns() order mismatch (-want +got):\n%s", diff)
	}
	if !runs[0].CreatedAt.Equal(base.Add(4 * time.Hour)) {
		t.Errorf("CreatedAt = %v, want %v", runs[0].CreatedAt, base.Add(4*time.Hour))
	}

	all, err := repo.ListRuns(ctx, 0)
	if err != nil || len(all) != 5 {
		t.Errorf("ListRuns(0) = %d runs, %v; want 5", len(all), err)
	}

	n, err := repo.CountRuns(ctx)
	if err != nil || n != 5 {
		t.Errorf("CountRuns() = %d, %v; want 5", n, err)
	}
}

func TestRepository_Closed(t *testing.T) {
	d := openTestDB(t)
	repo := NewRepository(d)
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if _, err := repo.InsertRun(context.Background(), sampleRun()); !errors.Is(err, ErrClosed) {
		t.Errorf("InsertRun() after Close error = %v, want ErrClosed", err)
	}
	if _, err := repo.ListRuns(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("ListRuns() after Close error = %v, want ErrClosed", err)
	}
	if err := d.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after Close error = %v, want ErrClosed", err)
	}
}
