package notion

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Page is a database entry as returned by the query and page endpoints.
type Page struct {
	ID             string              `json:"id"`
	CreatedTime    string              `json:"created_time"`
	LastEditedTime string              `json:"last_edited_time"`
	Archived       bool                `json:"archived"`
	Properties     map[string]Property `json:"properties"`
}

type queryRequest struct {
	Filter      any    `json:"filter,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
}

// queryResponse keeps results raw so that one undecodable page does not
// fail the whole batch.
type queryResponse struct {
	Results    []json.RawMessage `json:"results"`
	HasMore    bool              `json:"has_more"`
	NextCursor *string           `json:"next_cursor"`
}

type createPageRequest struct {
	Parent     parent              `json:"parent"`
	Properties map[string]Property `json:"properties"`
}

type parent struct {
	DatabaseID string `json:"database_id"`
}

type updatePageRequest struct {
	Properties map[string]Property `json:"properties"`
	// Archived moves the page to or from the trash when set.
	Archived *bool `json:"archived,omitempty"`
}

func textEquals(property, value string) map[string]any {
	return map[string]any{
		"property":  property,
		"rich_text": map[string]any{"equals": value},
	}
}

// text returns the text of a title or rich_text property.
func (p *Page) text(key string) (string, bool) {
	prop, ok := p.Properties[key]
	if !ok {
		return "", false
	}
	switch prop.Type {
	case PropTitle, PropRichText:
		return prop.Text, true
	}
	return "", false
}

// option returns the chosen name of a select or status property.
func (p *Page) option(key string) (string, bool) {
	prop, ok := p.Properties[key]
	if !ok || prop.Name == "" {
		return "", false
	}
	switch prop.Type {
	case PropSelect, PropStatus:
		return prop.Name, true
	}
	return "", false
}

func (p *Page) multiSelect(key string) ([]string, bool) {
	prop, ok := p.Properties[key]
	if !ok || prop.Type != PropMultiSelect {
		return nil, false
	}
	return prop.Names, true
}

func (p *Page) date(key string) (string, bool) {
	prop, ok := p.Properties[key]
	if !ok || prop.Type != PropDate || prop.Start == "" {
		return "", false
	}
	return prop.Start, true
}

func (p *Page) checkbox(key string) (bool, bool) {
	prop, ok := p.Properties[key]
	if !ok || prop.Type != PropCheckbox {
		return false, false
	}
	return prop.Checked, true
}

func (p *Page) relation(key string) (string, bool) {
	prop, ok := p.Properties[key]
	if !ok || prop.Type != PropRelation || len(prop.Relation) == 0 {
		return "", false
	}
	return prop.Relation[0], true
}

// integer reads a number property, or the first numeric option of a
// multi_select or select property.
func (p *Page) integer(key string) (int, bool) {
	prop, ok := p.Properties[key]
	if !ok {
		return 0, false
	}
	switch prop.Type {
	case PropNumber:
		if prop.Number != nil {
			return int(*prop.Number), true
		}
	case PropMultiSelect:
		if len(prop.Names) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(prop.Names[0])); err == nil {
				return n, true
			}
		}
	case PropSelect:
		if n, err := strconv.Atoi(strings.TrimSpace(prop.Name)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// lastEdited prefers the page timestamp, falling back to a
// last_edited_time property.
func (p *Page) lastEdited() string {
	if p.LastEditedTime != "" {
		return p.LastEditedTime
	}
	for _, prop := range p.Properties {
		if prop.Type == PropLastEditedTime && prop.Time != "" {
			return prop.Time
		}
	}
	return ""
}
