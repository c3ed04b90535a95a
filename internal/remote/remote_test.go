package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/taskion/taskion/internal/model"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", ErrUnavailable, true},
		{"wrapped unavailable", fmt.Errorf("failed to query: %w", ErrUnavailable), true},
		{"status error", &StatusError{StatusCode: 503, Body: "down"}, true},
		{"wrapped status error", fmt.Errorf("push: %w", &StatusError{StatusCode: 400}), true},
		{"missing property", ErrMissingProperty, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsBadRequest(t *testing.T) {
	if !IsBadRequest(fmt.Errorf("page p-1: %w", ErrMissingProperty)) {
		t.Error("IsBadRequest(missing property) = false")
	}
	if IsBadRequest(ErrUnavailable) {
		t.Error("IsBadRequest(unavailable) = true")
	}
}

func TestStatusError_TruncatesBody(t *testing.T) {
	err := &StatusError{StatusCode: 500, Body: strings.Repeat("x", 2000)}
	if len(err.Error()) > 600 {
		t.Errorf("Error() length = %d, want truncated", len(err.Error()))
	}
	var se *StatusError
	if !errors.As(fmt.Errorf("wrap: %w", err), &se) || se.StatusCode != 500 {
		t.Error("errors.As did not find StatusError")
	}
}

func TestDisabled(t *testing.T) {
	var a Adapter = Disabled{}
	ctx := context.Background()

	for _, kind := range model.Kinds() {
		snap, err := a.FetchAll(ctx, kind)
		if err != nil {
			t.Fatalf("FetchAll(%s) error = %v", kind, err)
		}
		if snap.Complete {
			t.Errorf("FetchAll(%s) returned a complete snapshot", kind)
		}
		if len(snap.Records) != 0 || snap.Kind != kind {
			t.Errorf("FetchAll(%s) = %+v", kind, snap)
		}
	}

	if err := a.Push(ctx, &model.Task{ID: "t-1"}); err != nil {
		t.Errorf("Push() error = %v", err)
	}
}

func TestSnapshot_IDs(t *testing.T) {
	snap := &Snapshot{
		Records:      []model.Record{&model.Course{ID: "a"}, &model.Course{ID: "b"}},
		Untranslated: []string{"c"},
	}
	ids := snap.IDs()
	if len(ids) != 3 {
		t.Fatalf("IDs() = %v", ids)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, ok := ids[id]; !ok {
			t.Errorf("IDs() missing %s", id)
		}
	}
}
