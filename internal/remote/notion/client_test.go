package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/remote"
)

const (
	coursesDB = "courses-db"
	tasksDB   = "tasks-db"
)

// fakeNotion serves the subset of the API the client uses. Pages are kept
// as raw JSON per database so tests can plant malformed entries.
type fakeNotion struct {
	t *testing.T

	mu       sync.Mutex
	pages    map[string][]json.RawMessage
	hasMore  bool
	failWith int
	nextID   int
	requests []string
	patched  map[string]map[string]json.RawMessage
	trashed  map[string]bool
	created  []createdPage
}

type createdPage struct {
	Database   string
	Properties map[string]json.RawMessage
}

func newFakeNotion(t *testing.T) (*fakeNotion, *Client) {
	t.Helper()
	f := &fakeNotion{
		t:       t,
		pages:   map[string][]json.RawMessage{},
		patched: map[string]map[string]json.RawMessage{},
		trashed: map[string]bool{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Token = "secret-token"
	cfg.CoursesDB = coursesDB
	cfg.TasksDB = tasksDB
	cfg.BaseURL = srv.URL
	cfg.Timeout = 5 * time.Second

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	client.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local) }
	return f, client
}

func (f *fakeNotion) addPage(db string, page string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[db] = append(f.pages[db], json.RawMessage(page))
}

func (f *fakeNotion) setFailure(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = status
}

func (f *fakeNotion) setHasMore(more bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasMore = more
}

func (f *fakeNotion) createdPages() []createdPage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createdPage(nil), f.created...)
}

func (f *fakeNotion) patchedProps(id string) (map[string]json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	props, ok := f.patched[id]
	return props, ok
}

// trashState reports the page-level archived flag sent for id, if any.
func (f *fakeNotion) trashState(id string) (archived, sent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	archived, sent = f.trashed[id]
	return archived, sent
}

func (f *fakeNotion) requestLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeNotion) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if got := r.Header.Get("Notion-Version"); got != APIVersion {
		http.Error(w, `{"message":"bad version"}`, http.StatusBadRequest)
		return
	}
	if f.failWith != 0 {
		http.Error(w, `{"message":"rate limited"}`, f.failWith)
		return
	}

	body, _ := io.ReadAll(r.Body)

	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/v1/databases/") && strings.HasSuffix(r.URL.Path, "/query"):
		db := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/databases/"), "/query")
		f.query(w, db, body)
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/v1/pages/"):
		id := strings.TrimPrefix(r.URL.Path, "/v1/pages/")
		var req struct {
			Properties map[string]json.RawMessage `json:"properties"`
			Archived   *bool                      `json:"archived"`
		}
		_ = json.Unmarshal(body, &req)
		if !f.hasPage(id) {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		f.patched[id] = req.Properties
		if req.Archived != nil {
			f.trashed[id] = *req.Archived
		}
		fmt.Fprintf(w, `{"id":%q}`, id)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/pages":
		var req struct {
			Parent struct {
				DatabaseID string `json:"database_id"`
			} `json:"parent"`
			Properties map[string]json.RawMessage `json:"properties"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			f.t.Errorf("bad create body: %v", err)
		}
		f.nextID++
		f.created = append(f.created, createdPage{Database: req.Parent.DatabaseID, Properties: req.Properties})
		fmt.Fprintf(w, `{"id":"new-page-%d"}`, f.nextID)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeNotion) hasPage(id string) bool {
	for _, pages := range f.pages {
		for _, raw := range pages {
			var p struct {
				ID string `json:"id"`
			}
			if json.Unmarshal(raw, &p) == nil && p.ID == id {
				return true
			}
		}
	}
	return false
}

func (f *fakeNotion) query(w http.ResponseWriter, db string, body []byte) {
	var req struct {
		PageSize int `json:"page_size"`
		Filter   *struct {
			Property string `json:"property"`
			RichText struct {
				Equals string `json:"equals"`
			} `json:"rich_text"`
		} `json:"filter"`
	}
	_ = json.Unmarshal(body, &req)

	results := []json.RawMessage{}
	for _, raw := range f.pages[db] {
		if req.Filter != nil {
			var p Page
			if json.Unmarshal(raw, &p) != nil {
				continue
			}
			if v, ok := p.text(req.Filter.Property); !ok || v != req.Filter.RichText.Equals {
				continue
			}
		}
		results = append(results, raw)
		if req.PageSize > 0 && len(results) == req.PageSize {
			break
		}
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"results":  results,
		"has_more": f.hasMore && req.Filter == nil,
	})
}

const coursePage = `{
	"id": "page-c1",
	"last_edited_time": "2024-04-30T10:00:00.000Z",
	"archived": false,
	"properties": {
		"Name": {"type": "title", "title": [{"plain_text": "Linear "}, {"plain_text": "Algebra"}]},
		"Semester": {"type": "multi_select", "multi_select": [{"name": "Spring"}, {"name": "2024"}]},
		"Day": {"type": "select", "select": {"name": "Tue"}},
		"Period": {"type": "multi_select", "multi_select": [{"name": "3"}]},
		"Room": {"type": "rich_text", "rich_text": [{"plain_text": "B-12"}]},
		"Instructor": {"type": "multi_select", "multi_select": [{"name": "Sato"}, {"name": "Kim"}]},
		"Formula": {"type": "formula", "formula": {"type": "string", "string": "x"}},
		"course_id": {"type": "rich_text", "rich_text": [{"plain_text": "c-1"}]}
	}
}`

func TestFetchAll_Courses(t *testing.T) {
	f, client := newFakeNotion(t)
	f.addPage(coursesDB, coursePage)

	snap, err := client.FetchAll(context.Background(), model.KindCourse)
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if !snap.Complete || snap.Dropped != 0 || len(snap.Records) != 1 {
		t.Fatalf("FetchAll() = %+v", snap)
	}

	c := snap.Records[0].(*model.Course)
	want := model.Course{
		ID:        "c-1",
		Title:     "Linear Algebra",
		Semester:  "Spring, 2024",
		DayOfWeek: "Tue",
		Period:    3,
		UpdatedAt: "2024-04-30T10:00:00.000000Z",
	}
	if c.ID != want.ID || c.Title != want.Title || c.Semester != want.Semester ||
		c.DayOfWeek != want.DayOfWeek || c.Period != want.Period || c.UpdatedAt != want.UpdatedAt {
		t.Errorf("course = %+v, want %+v", c, want)
	}
	if model.Deref(c.Room) != "B-12" || model.Deref(c.Instructor) != "Sato, Kim" {
		t.Errorf("room=%q instructor=%q", model.Deref(c.Room), model.Deref(c.Instructor))
	}
}

func TestFetchAll_SkipsBadPages(t *testing.T) {
	f, client := newFakeNotion(t)
	f.addPage(tasksDB, `{"id": "p-ok", "last_edited_time": "2024-04-30T10:00:00.000Z", "properties": {
		"Title": {"type": "title", "title": [{"plain_text": "Read ch. 2"}]},
		"todo_id": {"type": "rich_text", "rich_text": [{"plain_text": "t-1"}]}
	}}`)
	// No title at all.
	f.addPage(tasksDB, `{"id": "p-untitled", "last_edited_time": "2024-04-30T10:00:00.000Z", "properties": {
		"Status": {"type": "status", "status": {"name": "Done"}}
	}}`)
	// Title present with the wrong payload shape.
	f.addPage(tasksDB, `{"id": "p-broken", "last_edited_time": "2024-04-30T10:00:00.000Z", "properties": {
		"Title": {"type": "title", "title": "not an array"}
	}}`)
	// Not a page object.
	f.addPage(tasksDB, `["garbage"]`)

	snap, err := client.FetchAll(context.Background(), model.KindTask)
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if len(snap.Records) != 1 || snap.Dropped != 3 {
		t.Fatalf("records=%d dropped=%d, want 1 and 3", len(snap.Records), snap.Dropped)
	}
	if snap.Complete {
		t.Error("snapshot with an undecodable entry reported complete")
	}
	if len(snap.Untranslated) != 2 || snap.Untranslated[0] != "p-untitled" || snap.Untranslated[1] != "p-broken" {
		t.Errorf("Untranslated = %v, want page-id fallbacks", snap.Untranslated)
	}

	task := snap.Records[0].(*model.Task)
	if task.ID != "t-1" || task.Title != "Read ch. 2" {
		t.Errorf("task = %+v", task)
	}
	if task.DueDate != "2024-05-01" {
		t.Errorf("DueDate = %q, want today's date", task.DueDate)
	}
	if task.Status != model.DefaultStatus {
		t.Errorf("Status = %q, want %q", task.Status, model.DefaultStatus)
	}
	if task.CourseID != "" {
		t.Errorf("CourseID = %q, want empty", task.CourseID)
	}
}

func TestFetchAll_TaskFields(t *testing.T) {
	f, client := newFakeNotion(t)
	f.addPage(coursesDB, coursePage)
	f.addPage(tasksDB, `{"id": "p-t2", "last_edited_time": "2024-04-30T11:00:00.000Z", "archived": false, "properties": {
		"Title": {"type": "title", "title": [{"plain_text": "Homework 5"}]},
		"Due Date": {"type": "date", "date": {"start": "2024-05-07", "end": null}},
		"Status": {"type": "select", "select": {"name": "In progress"}},
		"Course": {"type": "relation", "relation": [{"id": "page-c1"}]},
		"completed_at": {"type": "date", "date": null},
		"is_archived": {"type": "checkbox", "checkbox": true}
	}}`)

	ctx := context.Background()
	if _, err := client.FetchAll(ctx, model.KindCourse); err != nil {
		t.Fatalf("FetchAll(course) failed: %v", err)
	}
	snap, err := client.FetchAll(ctx, model.KindTask)
	if err != nil {
		t.Fatalf("FetchAll(task) failed: %v", err)
	}
	if len(snap.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(snap.Records))
	}

	task := snap.Records[0].(*model.Task)
	if task.ID != "p-t2" {
		t.Errorf("ID = %q, want page id fallback", task.ID)
	}
	if task.CourseID != "c-1" {
		t.Errorf("CourseID = %q, want c-1 resolved from page-c1", task.CourseID)
	}
	if task.DueDate != "2024-05-07" || task.Status != "In progress" {
		t.Errorf("due=%q status=%q", task.DueDate, task.Status)
	}
	if !task.Archived {
		t.Error("Archived = false, want true from is_archived")
	}
	if task.CompletedAt != nil {
		t.Errorf("CompletedAt = %q, want nil", *task.CompletedAt)
	}
}

func TestFetchAll_IncompleteWhenMore(t *testing.T) {
	f, client := newFakeNotion(t)
	f.addPage(coursesDB, coursePage)
	f.setHasMore(true)

	snap, err := client.FetchAll(context.Background(), model.KindCourse)
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if snap.Complete {
		t.Error("Complete = true with has_more")
	}
}

func TestFetchAll_StatusErrorIsRetryable(t *testing.T) {
	f, client := newFakeNotion(t)
	f.setFailure(http.StatusServiceUnavailable)

	_, err := client.FetchAll(context.Background(), model.KindTask)
	if err == nil {
		t.Fatal("FetchAll() succeeded against failing server")
	}
	if !remote.IsRetryable(err) {
		t.Errorf("IsRetryable(%v) = false", err)
	}
	var se *remote.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("error %v is not a 503 StatusError", err)
	}
}

func TestFetchAll_UnreachableIsRetryable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token = "x"
	cfg.CoursesDB = coursesDB
	cfg.TasksDB = tasksDB
	cfg.BaseURL = "http://127.0.0.1:1"
	cfg.Timeout = time.Second
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	_, err = client.FetchAll(context.Background(), model.KindCourse)
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Errorf("FetchAll() error = %v, want ErrUnavailable", err)
	}
}

func TestPush_CreatesWhenAbsent(t *testing.T) {
	f, client := newFakeNotion(t)
	room := "A-1"

	course := &model.Course{ID: "c-9", Title: "Statistics", Semester: "Fall, 2024", DayOfWeek: "Fri", Period: 2, Room: &room}
	if err := client.Push(context.Background(), course); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}

	created := f.createdPages()
	if len(created) != 1 {
		t.Fatalf("created %d pages, want 1", len(created))
	}
	page := created[0]
	if page.Database != coursesDB {
		t.Errorf("parent database = %q, want %q", page.Database, coursesDB)
	}
	assertJSON(t, page.Properties["course_id"], `{"rich_text":[{"text":{"content":"c-9"}}]}`)
	assertJSON(t, page.Properties["Name"], `{"title":[{"text":{"content":"Statistics"}}]}`)
	assertJSON(t, page.Properties["Semester"], `{"multi_select":[{"name":"Fall"},{"name":"2024"}]}`)
	assertJSON(t, page.Properties["Period"], `{"multi_select":[{"name":"2"}]}`)
	assertJSON(t, page.Properties["Day"], `{"select":{"name":"Fri"}}`)
}

func TestPush_CourseMatchesDatabaseSchema(t *testing.T) {
	f, client := newFakeNotion(t)
	f.addPage(coursesDB, coursePage)
	ctx := context.Background()

	room := "A-1"
	fresh := &model.Course{ID: "c-9", Title: "Statistics", Semester: "Fall", DayOfWeek: "Fri", Period: 2, Room: &room}
	if err := client.Push(ctx, fresh); err != nil {
		t.Fatalf("Push() of new course failed: %v", err)
	}
	created := f.createdPages()
	if len(created) != 1 {
		t.Fatalf("created %d pages, want 1", len(created))
	}
	if got, want := sortedKeys(created[0].Properties), "Day,Name,Period,Room,Semester,course_id"; got != want {
		t.Errorf("create properties = %s, want %s", got, want)
	}

	archived := &model.Course{ID: "c-1", Title: "Linear Algebra", Semester: "Spring", DayOfWeek: "Tue", Archived: true}
	if err := client.Push(ctx, archived); err != nil {
		t.Fatalf("Push() of archived course failed: %v", err)
	}
	props, ok := f.patchedProps("page-c1")
	if !ok {
		t.Fatal("page-c1 was not patched")
	}
	if _, ok := props["is_archived"]; ok {
		t.Error("course update sent is_archived to a database without it")
	}
	if trashed, sent := f.trashState("page-c1"); !sent || !trashed {
		t.Errorf("page archived = %v (sent %v), want true", trashed, sent)
	}
}

func TestPush_CourseArchiveCheckboxWhenPresent(t *testing.T) {
	f, client := newFakeNotion(t)
	f.addPage(coursesDB, `{"id": "page-c2", "last_edited_time": "2024-04-30T10:00:00.000Z", "properties": {
		"Name": {"type": "title", "title": [{"plain_text": "Physics"}]},
		"is_archived": {"type": "checkbox", "checkbox": false},
		"course_id": {"type": "rich_text", "rich_text": [{"plain_text": "c-2"}]}
	}}`)
	ctx := context.Background()

	if _, err := client.FetchAll(ctx, model.KindCourse); err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if err := client.Push(ctx, &model.Course{ID: "c-2", Title: "Physics", Archived: true}); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}
	props, ok := f.patchedProps("page-c2")
	if !ok {
		t.Fatal("page-c2 was not patched")
	}
	assertJSON(t, props["is_archived"], `{"checkbox":true}`)
	if _, sent := f.trashState("page-c2"); sent {
		t.Error("page trashed although the database has an archive checkbox")
	}
}

func TestPush_UpdatesExistingPage(t *testing.T) {
	f, client := newFakeNotion(t)
	f.addPage(tasksDB, `{"id": "page-t1", "last_edited_time": "2024-04-30T10:00:00.000Z", "properties": {
		"Title": {"type": "title", "title": [{"plain_text": "Old"}]},
		"todo_id": {"type": "rich_text", "rich_text": [{"plain_text": "t-1"}]}
	}}`)

	done := "2024-05-01T09:00:00Z"
	task := &model.Task{ID: "t-1", Title: "New", DueDate: "2024-05-03", Status: model.DoneStatus, CompletedAt: &done}

	ctx := context.Background()
	if err := client.Push(ctx, task); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}
	if n := len(f.createdPages()); n != 0 {
		t.Errorf("created %d pages, want 0", n)
	}
	props, ok := f.patchedProps("page-t1")
	if !ok {
		t.Fatal("page-t1 was not patched")
	}
	assertJSON(t, props["Title"], `{"title":[{"text":{"content":"New"}}]}`)
	assertJSON(t, props["Status"], `{"status":{"name":"Done"}}`)
	assertJSON(t, props["Due Date"], `{"date":{"start":"2024-05-03"}}`)
	assertJSON(t, props["completed_at"], `{"date":{"start":"2024-05-01T09:00:00Z"}}`)
	assertJSON(t, props["is_archived"], `{"checkbox":false}`)
	if _, ok := props["Course"]; ok {
		t.Error("Course relation sent for a task without course")
	}

	// A second push of the same record reuses the remembered page id.
	before := len(f.requestLog())
	if err := client.Push(ctx, task); err != nil {
		t.Fatalf("second Push() failed: %v", err)
	}
	if got := f.requestLog()[before:]; len(got) != 1 || got[0] != "PATCH /v1/pages/page-t1" {
		t.Errorf("second push requests = %v, want a single PATCH", got)
	}
}

func TestPush_TaskRelationUsesCoursePage(t *testing.T) {
	f, client := newFakeNotion(t)
	f.addPage(coursesDB, coursePage)

	task := &model.Task{ID: "t-5", CourseID: "c-1", Title: "Quiz", DueDate: "2024-05-03", Status: model.DefaultStatus}
	if err := client.Push(context.Background(), task); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}
	created := f.createdPages()
	if len(created) != 1 {
		t.Fatalf("created %d pages, want 1", len(created))
	}
	assertJSON(t, created[0].Properties["Course"], `{"relation":[{"id":"page-c1"}]}`)
}

func TestPush_FailureIsRetryable(t *testing.T) {
	f, client := newFakeNotion(t)
	f.setFailure(http.StatusTooManyRequests)

	err := client.Push(context.Background(), &model.Course{ID: "c-1", Title: "X"})
	if !remote.IsRetryable(err) {
		t.Errorf("Push() error = %v, want retryable", err)
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(&Config{CoursesDB: "a", TasksDB: "b"}); err == nil {
		t.Error("New() without token succeeded")
	}
	if _, err := New(&Config{Token: "t", CoursesDB: "a"}); err == nil {
		t.Error("New() without tasks database succeeded")
	}
}

func sortedKeys(m map[string]json.RawMessage) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func assertJSON(t *testing.T, got json.RawMessage, want string) {
	t.Helper()
	if got == nil {
		t.Errorf("property missing, want %s", want)
		return
	}
	var g, w any
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("invalid JSON %s: %v", got, err)
	}
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("invalid expected JSON %s: %v", want, err)
	}
	gb, _ := json.Marshal(g)
	wb, _ := json.Marshal(w)
	if string(gb) != string(wb) {
		t.Errorf("property = %s, want %s", gb, wb)
	}
}
