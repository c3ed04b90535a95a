// Package dates turns user-entered due dates into stored date strings.
package dates

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/taskion/taskion/internal/model"
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDue accepts a calendar date, an RFC3339 timestamp or an English
// expression such as "tomorrow" or "next friday", resolved against now.
// Dates and timestamps are returned unchanged; expressions become a
// YYYY-MM-DD date in now's location. Empty input returns "".
func ParseDue(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if _, ok := model.ParseDueDate(s); ok {
		return s, nil
	}

	r, err := parser.Parse(s, now)
	if err != nil {
		return "", fmt.Errorf("%w: cannot parse due date %q: %v", model.ErrInvalid, s, err)
	}
	if r == nil {
		return "", fmt.Errorf("%w: cannot parse due date %q", model.ErrInvalid, s)
	}
	return r.Time.In(now.Location()).Format(model.DateLayout), nil
}
