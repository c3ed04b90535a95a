// Package notion implements remote.Adapter against the Notion REST API.
//
// Courses and tasks live in two databases. Each page mirrors the local
// record id in a rich_text property (course_id, todo_id); pushes look the
// page up by that property and update it, or create a new page when none
// exists. Fetches read a single bounded page of results.
//
// Task pages relate to course pages by page id, while local tasks refer to
// courses by record id. The client remembers the pairs it sees during
// fetches and pushes to translate between the two.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/remote"
)

const (
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.notion.com"

	// APIVersion is sent as the Notion-Version header.
	APIVersion = "2022-06-28"

	// PageSize bounds every query; further pages are not requested.
	PageSize = 100

	maxErrorBody = 64 << 10
)

// Config holds client settings.
type Config struct {
	Token     string
	CoursesDB string
	TasksDB   string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// HTTPClient is the transport wrapped with the bearer credential.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// DefaultConfig returns a Config with the public endpoint and a 30s timeout.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
		Logger:  zerolog.Nop(),
	}
}

// Client is the live Notion adapter.
type Client struct {
	cfg  *Config
	http *http.Client
	log  zerolog.Logger
	now  func() time.Time

	mu sync.Mutex
	// pages maps kind and record id to page id
	pages map[model.Kind]map[string]string
	// coursesByPage maps a course page id to its record id
	coursesByPage map[string]string
	// courseArchiveProp is set once a fetched course page carries the
	// is_archived checkbox.
	courseArchiveProp bool
}

var _ remote.Adapter = (*Client)(nil)

// New creates a client. Token and both database ids are required.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Token == "" {
		return nil, errors.New("notion token is required")
	}
	if cfg.CoursesDB == "" || cfg.TasksDB == "" {
		return nil, errors.New("notion database ids are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = cfg.Timeout

	return &Client{
		cfg:  cfg,
		http: httpClient,
		log:  cfg.Logger.With().Str("component", "notion").Logger(),
		now:  time.Now,
		pages: map[model.Kind]map[string]string{
			model.KindCourse: {},
			model.KindTask:   {},
		},
		coursesByPage: map[string]string{},
	}, nil
}

// Name implements remote.Adapter.
func (c *Client) Name() string {
	return "notion"
}

func (c *Client) database(kind model.Kind) string {
	if kind == model.KindCourse {
		return c.cfg.CoursesDB
	}
	return c.cfg.TasksDB
}

// FetchAll queries the kind's database and translates each page on its own.
// Pages that fail to decode or translate are logged and counted as dropped.
func (c *Client) FetchAll(ctx context.Context, kind model.Kind) (*remote.Snapshot, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}

	var resp queryResponse
	path := "/v1/databases/" + c.database(kind) + "/query"
	if err := c.do(ctx, http.MethodPost, path, queryRequest{PageSize: PageSize}, &resp); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", kind.Plural(), err)
	}

	snap := &remote.Snapshot{
		Kind:     kind,
		Records:  make([]model.Record, 0, len(resp.Results)),
		Complete: !resp.HasMore,
	}
	if resp.HasMore {
		c.log.Warn().Str("kind", string(kind)).Int("page_size", PageSize).
			Msg("remote has more results than one page; skipping archive reconciliation")
	}

	for _, raw := range resp.Results {
		var page Page
		if err := json.Unmarshal(raw, &page); err != nil || page.ID == "" {
			// Without an id the entry might mirror any local record.
			snap.Dropped++
			snap.Complete = false
			c.log.Warn().Err(err).Str("kind", string(kind)).Msg("skipping undecodable page")
			continue
		}

		if _, ok := page.checkbox(archivedProp); ok && kind == model.KindCourse {
			c.mu.Lock()
			c.courseArchiveProp = true
			c.mu.Unlock()
		}

		rec, err := c.translate(kind, &page)
		if err != nil {
			snap.Dropped++
			snap.Untranslated = append(snap.Untranslated, recordID(&page, kind))
			c.log.Warn().Err(err).Str("kind", string(kind)).Str("page_id", page.ID).Msg("skipping page")
			continue
		}

		c.remember(kind, rec.RecordID(), page.ID)
		snap.Records = append(snap.Records, rec)
	}

	c.log.Debug().Str("kind", string(kind)).Int("records", len(snap.Records)).
		Int("dropped", snap.Dropped).Bool("complete", snap.Complete).Msg("fetched")
	return snap, nil
}

func (c *Client) translate(kind model.Kind, page *Page) (model.Record, error) {
	if kind == model.KindCourse {
		return pageToCourse(page)
	}
	return pageToTask(page, c.now(), c.courseForPage)
}

// Push updates the page mirroring rec, or creates it.
//
// Courses in a database without the is_archived checkbox are archived by
// trashing the page on update. A course that is already archived when it
// is first created stays a live page.
func (c *Client) Push(ctx context.Context, rec model.Record) error {
	var (
		props        map[string]Property
		pageArchived *bool
	)
	switch r := rec.(type) {
	case *model.Course:
		c.mu.Lock()
		withProp := c.courseArchiveProp
		c.mu.Unlock()
		props = courseProperties(r, withProp)
		if !withProp {
			archived := r.Archived
			pageArchived = &archived
		}
	case *model.Task:
		coursePage, err := c.coursePage(ctx, r.CourseID)
		if err != nil {
			return err
		}
		props = taskProperties(r, coursePage)
	default:
		return fmt.Errorf("unsupported record type %T", rec)
	}

	kind := rec.RecordKind()
	id := rec.RecordID()

	pageID, cached, err := c.findPage(ctx, kind, id)
	if err != nil {
		return err
	}

	if pageID != "" {
		err := c.updatePage(ctx, pageID, props, pageArchived)
		if err == nil {
			c.log.Debug().Str("kind", string(kind)).Str("id", id).Str("page_id", pageID).Msg("updated page")
			return nil
		}
		var se *remote.StatusError
		if !cached || !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
			return fmt.Errorf("failed to update %s %s: %w", kind, id, err)
		}
		// The remembered page is gone; look it up again.
		c.forget(kind, id, pageID)
		if pageID, err = c.queryPage(ctx, kind, id); err != nil {
			return err
		}
		if pageID != "" {
			if err := c.updatePage(ctx, pageID, props, pageArchived); err != nil {
				return fmt.Errorf("failed to update %s %s: %w", kind, id, err)
			}
			return nil
		}
	}

	var created Page
	req := createPageRequest{Parent: parent{DatabaseID: c.database(kind)}, Properties: props}
	if err := c.do(ctx, http.MethodPost, "/v1/pages", req, &created); err != nil {
		return fmt.Errorf("failed to create %s %s: %w", kind, id, err)
	}
	if created.ID != "" {
		c.remember(kind, id, created.ID)
	}
	c.log.Debug().Str("kind", string(kind)).Str("id", id).Str("page_id", created.ID).Msg("created page")
	return nil
}

func (c *Client) updatePage(ctx context.Context, pageID string, props map[string]Property, archived *bool) error {
	req := updatePageRequest{Properties: props, Archived: archived}
	return c.do(ctx, http.MethodPatch, "/v1/pages/"+pageID, req, nil)
}

// findPage returns the page mirroring the record, consulting the cache
// before the remote. cached reports whether the answer came from the cache.
func (c *Client) findPage(ctx context.Context, kind model.Kind, id string) (pageID string, cached bool, err error) {
	c.mu.Lock()
	pageID = c.pages[kind][id]
	c.mu.Unlock()
	if pageID != "" {
		return pageID, true, nil
	}

	pageID, err = c.queryPage(ctx, kind, id)
	return pageID, false, err
}

func (c *Client) queryPage(ctx context.Context, kind model.Kind, id string) (string, error) {
	req := queryRequest{Filter: textEquals(idProperty(kind), id), PageSize: 1}
	var resp queryResponse
	path := "/v1/databases/" + c.database(kind) + "/query"
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", fmt.Errorf("failed to look up %s %s: %w", kind, id, err)
	}
	if len(resp.Results) == 0 {
		return "", nil
	}

	var page Page
	if err := json.Unmarshal(resp.Results[0], &page); err != nil || page.ID == "" {
		return "", fmt.Errorf("failed to look up %s %s: %w", kind, id, remote.ErrMalformed)
	}
	c.remember(kind, id, page.ID)
	return page.ID, nil
}

// coursePage resolves a local course id to its page id. An unknown course
// yields "" and the relation is left untouched.
func (c *Client) coursePage(ctx context.Context, courseID string) (string, error) {
	if courseID == "" {
		return "", nil
	}
	pageID, _, err := c.findPage(ctx, model.KindCourse, courseID)
	if err != nil {
		return "", err
	}
	if pageID == "" {
		c.log.Warn().Str("course_id", courseID).Msg("course has no remote page; omitting relation")
	}
	return pageID, nil
}

// courseForPage maps a course page id to the local course id. Unknown pages
// keep the page id, which is also the record id of a course created remotely.
func (c *Client) courseForPage(pageID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.coursesByPage[pageID]; ok {
		return id
	}
	return pageID
}

func (c *Client) remember(kind model.Kind, id, pageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[kind][id] = pageID
	if kind == model.KindCourse {
		c.coursesByPage[pageID] = id
	}
}

func (c *Client) forget(kind model.Kind, id, pageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pages[kind], id)
	if kind == model.KindCourse {
		delete(c.coursesByPage, pageID)
	}
}

// do sends a JSON request and decodes a JSON answer into out (if non-nil).
// Transport failures wrap remote.ErrUnavailable; non-2xx answers become
// *remote.StatusError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", remote.ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &remote.StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", remote.ErrMalformed, err)
	}
	return nil
}
