package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/taskion/taskion/internal/model"
)

// testDB opens a schema-initialized database in a temp dir with a fixed,
// manually advanced clock.
func testDB(t *testing.T) (*DB, *time.Time) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }
	return db, &now
}

func TestOpen_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "taskion.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}

	var mode string
	if err := db.conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("failed to read journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db, _ := testDB(t)

	if err := db.InitSchema(); err != nil {
		t.Fatalf("second InitSchema() failed: %v", err)
	}

	for _, table := range []string{"courses", "tasks", "sync_runs"} {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestClose(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	if err := db.Ping(context.Background()); err == nil {
		t.Error("Ping() after Close() succeeded")
	}
}

func TestInsertCourse_StartsPending(t *testing.T) {
	db, now := testDB(t)
	ctx := context.Background()

	room := "A-101"
	course, err := db.InsertCourse(ctx, &model.NewCourse{Title: "Linear Algebra", Semester: "Spring", Period: 2, Room: &room})
	if err != nil {
		t.Fatalf("InsertCourse() failed: %v", err)
	}
	if course.ID == "" {
		t.Fatal("InsertCourse() returned empty id")
	}

	got, err := db.GetCourse(ctx, course.ID)
	if err != nil {
		t.Fatalf("GetCourse() failed: %v", err)
	}
	if got.Title != "Linear Algebra" || got.Period != 2 || model.Deref(got.Room) != "A-101" {
		t.Errorf("GetCourse() = %+v", got)
	}
	if got.SyncState != model.SyncPending {
		t.Errorf("SyncState = %s, want pending", got.SyncState)
	}
	if got.UpdatedAt != model.FormatTimestamp(*now) {
		t.Errorf("UpdatedAt = %s, want %s", got.UpdatedAt, model.FormatTimestamp(*now))
	}
	if got.LastSyncedAt != nil {
		t.Errorf("LastSyncedAt = %s, want nil", *got.LastSyncedAt)
	}
}

func TestInsertCourse_Invalid(t *testing.T) {
	db, _ := testDB(t)

	_, err := db.InsertCourse(context.Background(), &model.NewCourse{Title: ""})
	if !errors.Is(err, model.ErrInvalid) {
		t.Errorf("InsertCourse() error = %v, want ErrInvalid", err)
	}
}

func TestUpdateTask_SetsPendingAndMergesFields(t *testing.T) {
	db, now := testDB(t)
	ctx := context.Background()

	task, err := db.InsertTask(ctx, &model.NewTask{Title: "Essay draft", DueDate: "2024-04-20", CourseID: "c-1"})
	if err != nil {
		t.Fatalf("InsertTask() failed: %v", err)
	}
	if err := db.MarkSynced(ctx, model.KindTask, task.ID, "2024-04-01T09:00:00.000000Z"); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}

	*now = now.Add(time.Hour)
	status := model.DoneStatus
	updated, err := db.UpdateTask(ctx, task.ID, &model.TaskPatch{Status: &status})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}

	got, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.Title != "Essay draft" || got.DueDate != "2024-04-20" || got.CourseID != "c-1" {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if got.Status != model.DoneStatus {
		t.Errorf("Status = %q, want Done", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
	if got.SyncState != model.SyncPending {
		t.Errorf("SyncState = %s, want pending", got.SyncState)
	}
	if got.UpdatedAt != updated.UpdatedAt || got.UpdatedAt != model.FormatTimestamp(*now) {
		t.Errorf("UpdatedAt = %s, want %s", got.UpdatedAt, model.FormatTimestamp(*now))
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()
	title := "x"

	if _, err := db.UpdateTask(ctx, "missing", &model.TaskPatch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTask() error = %v, want ErrNotFound", err)
	}
	if _, err := db.UpdateCourse(ctx, "missing", &model.CoursePatch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateCourse() error = %v, want ErrNotFound", err)
	}
	if _, err := db.FindByID(ctx, model.KindCourse, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID() error = %v, want ErrNotFound", err)
	}
}

func TestArchive(t *testing.T) {
	db, now := testDB(t)
	ctx := context.Background()

	task, err := db.InsertTask(ctx, &model.NewTask{Title: "Quiz prep"})
	if err != nil {
		t.Fatalf("InsertTask() failed: %v", err)
	}
	if err := db.MarkSynced(ctx, model.KindTask, task.ID, model.FormatTimestamp(*now)); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}

	*now = now.Add(time.Minute)
	ok, err := db.Archive(ctx, model.KindTask, task.ID)
	if err != nil || !ok {
		t.Fatalf("Archive() = %v, %v; want true, nil", ok, err)
	}

	active, err := db.ListActive(ctx, model.KindTask)
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("ListActive() returned %d records, want 0", len(active))
	}

	rec, err := db.FindByID(ctx, model.KindTask, task.ID)
	if err != nil {
		t.Fatalf("FindByID() failed: %v", err)
	}
	if !rec.IsArchived() || rec.State() != model.SyncPending {
		t.Errorf("archived=%v state=%s, want true pending", rec.IsArchived(), rec.State())
	}
	if rec.LastModified() != model.FormatTimestamp(*now) {
		t.Errorf("LastModified() = %s, want %s", rec.LastModified(), model.FormatTimestamp(*now))
	}

	ok, err = db.Archive(ctx, model.KindTask, "missing")
	if err != nil || ok {
		t.Errorf("Archive(missing) = %v, %v; want false, nil", ok, err)
	}

	ok, err = db.Unarchive(ctx, model.KindTask, task.ID)
	if err != nil || !ok {
		t.Fatalf("Unarchive() = %v, %v; want true, nil", ok, err)
	}
	active, _ = db.ListActive(ctx, model.KindTask)
	if len(active) != 1 {
		t.Errorf("ListActive() after Unarchive returned %d records, want 1", len(active))
	}
}

func TestUpsert_KeepsSyncBookkeeping(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()

	course := &model.Course{ID: "c-1", Title: "Physics", UpdatedAt: "2024-03-01T00:00:00Z"}
	if err := db.Upsert(ctx, course); err != nil {
		t.Fatalf("Upsert() insert failed: %v", err)
	}
	rec, _ := db.FindByID(ctx, model.KindCourse, "c-1")
	if rec.State() != model.SyncPending {
		t.Errorf("inserted state = %s, want pending", rec.State())
	}

	syncedAt := "2024-03-02T00:00:00.000000Z"
	if err := db.MarkSynced(ctx, model.KindCourse, "c-1", syncedAt); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}

	changed := &model.Course{ID: "c-1", Title: "Physics II", Period: 4, UpdatedAt: "2024-03-03T00:00:00Z", SyncState: model.SyncPending}
	if err := db.Upsert(ctx, changed); err != nil {
		t.Fatalf("Upsert() update failed: %v", err)
	}

	got, err := db.GetCourse(ctx, "c-1")
	if err != nil {
		t.Fatalf("GetCourse() failed: %v", err)
	}
	if got.Title != "Physics II" || got.Period != 4 || got.UpdatedAt != "2024-03-03T00:00:00.000000Z" {
		t.Errorf("content not updated: %+v", got)
	}
	if got.SyncState != model.SyncSynced || model.Deref(got.LastSyncedAt) != syncedAt {
		t.Errorf("bookkeeping changed: state=%s last_synced_at=%v", got.SyncState, model.Deref(got.LastSyncedAt))
	}
}

func TestListActive_OrdersMixedTimestampFormats(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()

	for _, c := range []*model.Course{
		{ID: "offset", Title: "Offset", UpdatedAt: "2024-05-01T11:00:00+09:00"},
		{ID: "pulled", Title: "Pulled", UpdatedAt: "2024-05-01T10:30:00.000Z"},
		{ID: "local", Title: "Local", UpdatedAt: "2024-05-01T10:30:00.000500Z"},
	} {
		if err := db.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", c.ID, err)
		}
	}

	recs, err := db.ListActive(ctx, model.KindCourse)
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	var got []string
	for _, rec := range recs {
		got = append(got, rec.RecordID())
	}
	if want := []string{"local", "pulled", "offset"}; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ListActive() order = %v, want %v", got, want)
	}

	rec, _ := db.FindByID(ctx, model.KindCourse, "offset")
	if rec.LastModified() != "2024-05-01T02:00:00.000000Z" {
		t.Errorf("stored updated_at = %s, want UTC fixed width", rec.LastModified())
	}
}

func TestArchiveRemoved_LeavesBookkeeping(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()

	task := &model.Task{ID: "t-1", Title: "Lab", DueDate: "2024-04-02", Status: model.DefaultStatus, UpdatedAt: "2024-03-01T00:00:00Z"}
	if err := db.Upsert(ctx, task); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if err := db.MarkSynced(ctx, model.KindTask, "t-1", "2024-03-01T01:00:00Z"); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}

	if err := db.ArchiveRemoved(ctx, model.KindTask, "t-1"); err != nil {
		t.Fatalf("ArchiveRemoved() failed: %v", err)
	}

	got, _ := db.GetTask(ctx, "t-1")
	if !got.Archived {
		t.Error("task not archived")
	}
	if got.SyncState != model.SyncSynced {
		t.Errorf("SyncState = %s, want synced", got.SyncState)
	}
	if got.UpdatedAt != "2024-03-01T00:00:00.000000Z" {
		t.Errorf("UpdatedAt = %s, want unchanged", got.UpdatedAt)
	}
}

func TestListTasks_Filters(t *testing.T) {
	db, now := testDB(t)
	ctx := context.Background()

	inputs := []model.NewTask{
		{Title: "A", CourseID: "c-1"},
		{Title: "B", CourseID: "c-1", Status: model.DoneStatus},
		{Title: "C", CourseID: "c-2"},
	}
	var ids []string
	for _, in := range inputs {
		*now = now.Add(time.Second)
		task, err := db.InsertTask(ctx, &in)
		if err != nil {
			t.Fatalf("InsertTask(%s) failed: %v", in.Title, err)
		}
		ids = append(ids, task.ID)
	}
	if _, err := db.Archive(ctx, model.KindTask, ids[2]); err != nil {
		t.Fatalf("Archive() failed: %v", err)
	}

	tests := []struct {
		name   string
		filter TaskFilter
		want   []string
	}{
		{"active only", TaskFilter{}, []string{"B", "A"}},
		{"include archived", TaskFilter{IncludeArchived: true}, []string{"C", "B", "A"}},
		{"by course", TaskFilter{CourseID: "c-1"}, []string{"B", "A"}},
		{"by status", TaskFilter{Status: model.DoneStatus}, []string{"B"}},
		{"limit", TaskFilter{IncludeArchived: true, Limit: 1}, []string{"C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := db.ListTasks(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListTasks() failed: %v", err)
			}
			var got []string
			for _, task := range tasks {
				got = append(got, task.Title)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListTasks() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ListTasks()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCounts(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()

	for _, title := range []string{"One", "Two", "Three"} {
		if _, err := db.InsertCourse(ctx, &model.NewCourse{Title: title}); err != nil {
			t.Fatalf("InsertCourse() failed: %v", err)
		}
	}
	courses, _ := db.ListCourses(ctx, CourseFilter{})
	if err := db.MarkSynced(ctx, model.KindCourse, courses[0].ID, "2024-04-01T00:00:00Z"); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}
	if err := db.ArchiveRemoved(ctx, model.KindCourse, courses[0].ID); err != nil {
		t.Fatalf("ArchiveRemoved() failed: %v", err)
	}

	c, err := db.Counts(ctx, model.KindCourse)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	want := Counts{Total: 3, Active: 2, Archived: 1, Pending: 2, Synced: 1}
	if *c != want {
		t.Errorf("Counts() = %+v, want %+v", *c, want)
	}

	empty, err := db.Counts(ctx, model.KindTask)
	if err != nil {
		t.Fatalf("Counts(task) failed: %v", err)
	}
	if *empty != (Counts{}) {
		t.Errorf("Counts(task) = %+v, want zero", *empty)
	}
}

func TestSyncRuns(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()

	if _, err := db.LastSyncRun(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LastSyncRun() on empty table error = %v, want ErrNotFound", err)
	}

	runs := []*model.SyncRun{
		{StartedAt: "2024-04-01T09:00:00.000000Z", FinishedAt: "2024-04-01T09:00:01.000000Z", Outcome: model.RunSucceeded, Pushed: 2, Pulled: 5},
		{StartedAt: "2024-04-01T09:05:00.000000Z", FinishedAt: "2024-04-01T09:05:01.000000Z", Outcome: model.RunFailed, Error: "remote unavailable"},
	}
	for _, run := range runs {
		if err := db.RecordSyncRun(ctx, run); err != nil {
			t.Fatalf("RecordSyncRun() failed: %v", err)
		}
		if run.ID == "" {
			t.Error("RecordSyncRun() did not assign an id")
		}
	}

	last, err := db.LastSyncRun(ctx)
	if err != nil {
		t.Fatalf("LastSyncRun() failed: %v", err)
	}
	if last.Outcome != model.RunFailed || last.Error != "remote unavailable" {
		t.Errorf("LastSyncRun() = %+v", last)
	}

	list, err := db.ListSyncRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListSyncRuns() failed: %v", err)
	}
	if len(list) != 2 || list[1].Pushed != 2 || list[1].Pulled != 5 {
		t.Errorf("ListSyncRuns() = %+v", list)
	}
}
