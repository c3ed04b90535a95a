// Package transfer exports and imports local records.
//
// JSONL is the lossless format: one object per line, tagged with its kind,
// readable by Import. YAML is a read-only dump grouped by kind.
package transfer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/taskion/taskion/internal/model"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts jsonl, json, yaml and yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jsonl", "json":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Source lists records for export. *store.DB satisfies it.
type Source interface {
	ListAll(ctx context.Context, kind model.Kind) ([]model.Record, error)
}

// Destination receives imported records. *store.DB satisfies it.
type Destination interface {
	Upsert(ctx context.Context, rec model.Record) error
	MarkPending(ctx context.Context, kind model.Kind, id string) error
}

// Line is one JSONL entry.
type Line struct {
	Kind   model.Kind    `json:"kind"`
	Course *model.Course `json:"course,omitempty"`
	Task   *model.Task   `json:"task,omitempty"`
}

// Record returns the entry's record, or nil if the kind and payload do not
// match.
func (l *Line) Record() model.Record {
	switch {
	case l.Kind == model.KindCourse && l.Course != nil:
		return l.Course
	case l.Kind == model.KindTask && l.Task != nil:
		return l.Task
	}
	return nil
}

type document struct {
	Courses []model.Record `yaml:"courses"`
	Tasks   []model.Record `yaml:"tasks"`
}

// ExportResult counts exported records.
type ExportResult struct {
	Courses int
	Tasks   int
}

// Export writes every record, archived ones included, courses first.
func Export(ctx context.Context, src Source, w io.Writer, format Format) (*ExportResult, error) {
	result := &ExportResult{}
	byKind := make(map[model.Kind][]model.Record, 2)
	for _, kind := range model.Kinds() {
		records, err := src.ListAll(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", kind.Plural(), err)
		}
		byKind[kind] = records
	}
	result.Courses = len(byKind[model.KindCourse])
	result.Tasks = len(byKind[model.KindTask])

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		doc := document{Courses: byKind[model.KindCourse], Tasks: byKind[model.KindTask]}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to flush yaml: %w", err)
		}
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, kind := range model.Kinds() {
			for _, rec := range byKind[kind] {
				line := Line{Kind: kind}
				switch r := rec.(type) {
				case *model.Course:
					line.Course = r
				case *model.Task:
					line.Task = r
				}
				if err := enc.Encode(line); err != nil {
					return nil, fmt.Errorf("failed to encode %s %s: %w", kind, rec.RecordID(), err)
				}
			}
		}
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	return result, nil
}

// ImportOptions controls Import.
type ImportOptions struct {
	// DryRun validates every line without writing
	DryRun bool
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Courses int
	Tasks   int
	// Errors lists lines that were skipped, with their line numbers
	Errors []string
}

// maxLineSize bounds a single JSONL line.
const maxLineSize = 4 << 20

// Import reads JSONL produced by Export. Each imported record is queued for
// push. Lines that fail validation are reported in the result and skipped;
// malformed JSON aborts the import. Records without an id get a new one.
func Import(ctx context.Context, dst Destination, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var line Line
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			return result, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		rec := line.Record()
		if rec == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: no %q payload", lineNum, line.Kind))
			continue
		}
		prepare(rec)

		if err := validate(rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}

		if !opts.DryRun {
			if err := dst.Upsert(ctx, rec); err != nil {
				if errors.Is(err, model.ErrInvalid) {
					result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
					continue
				}
				return result, fmt.Errorf("failed to import line %d: %w", lineNum, err)
			}
			if err := dst.MarkPending(ctx, rec.RecordKind(), rec.RecordID()); err != nil {
				return result, fmt.Errorf("failed to queue line %d: %w", lineNum, err)
			}
		}

		if rec.RecordKind() == model.KindCourse {
			result.Courses++
		} else {
			result.Tasks++
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("failed to read input: %w", err)
	}
	return result, nil
}

// prepare fills a missing id and marks the record pending.
func prepare(rec model.Record) {
	switch r := rec.(type) {
	case *model.Course:
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.UpdatedAt = model.NormalizeTimestamp(r.UpdatedAt)
		r.SyncState = model.SyncPending
	case *model.Task:
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.UpdatedAt = model.NormalizeTimestamp(r.UpdatedAt)
		r.SyncState = model.SyncPending
	}
}

func validate(rec model.Record) error {
	switch r := rec.(type) {
	case *model.Course:
		return r.Validate()
	case *model.Task:
		return r.Validate()
	}
	return fmt.Errorf("unsupported record type %T", rec)
}
