package notion

import (
	"encoding/json"
	"strings"
)

// PropertyType is the discriminator of a page property.
type PropertyType string

const (
	PropTitle          PropertyType = "title"
	PropRichText       PropertyType = "rich_text"
	PropNumber         PropertyType = "number"
	PropSelect         PropertyType = "select"
	PropMultiSelect    PropertyType = "multi_select"
	PropStatus         PropertyType = "status"
	PropDate           PropertyType = "date"
	PropCheckbox       PropertyType = "checkbox"
	PropRelation       PropertyType = "relation"
	PropURL            PropertyType = "url"
	PropLastEditedTime PropertyType = "last_edited_time"
	// PropUnknown covers every type this package does not read, as well as
	// known types whose payload did not decode.
	PropUnknown PropertyType = "unknown"
)

// Property is one typed value of a page. Only the fields belonging to Type
// are meaningful.
type Property struct {
	Type PropertyType

	// Text is the concatenated plain text of title and rich_text values.
	Text string
	// Name is the option name of select and status values; empty when unset.
	Name string
	// Names lists multi_select option names in order.
	Names []string
	// Number is nil when the number property is empty.
	Number *float64
	// Start and End of a date value; Start is empty when the date is unset.
	Start string
	End   string
	// Checkbox value.
	Checked bool
	// Relation holds the related page ids.
	Relation []string
	// URL value.
	URL string
	// Time holds last_edited_time.
	Time string
}

// Title builds a title property.
func Title(s string) Property { return Property{Type: PropTitle, Text: s} }

// RichText builds a rich_text property.
func RichText(s string) Property { return Property{Type: PropRichText, Text: s} }

// Select builds a select property; an empty name clears it.
func Select(name string) Property { return Property{Type: PropSelect, Name: name} }

// Status builds a status property.
func Status(name string) Property { return Property{Type: PropStatus, Name: name} }

// MultiSelect builds a multi_select property.
func MultiSelect(names ...string) Property { return Property{Type: PropMultiSelect, Names: names} }

// Date builds a date property; an empty start clears it.
func Date(start string) Property { return Property{Type: PropDate, Start: start} }

// Checkbox builds a checkbox property.
func Checkbox(b bool) Property { return Property{Type: PropCheckbox, Checked: b} }

// Relation builds a relation property.
func Relation(pageIDs ...string) Property { return Property{Type: PropRelation, Relation: pageIDs} }

type textItem struct {
	PlainText string `json:"plain_text,omitempty"`
	Text      *struct {
		Content string `json:"content"`
	} `json:"text,omitempty"`
}

type option struct {
	Name string `json:"name"`
}

type dateValue struct {
	Start string  `json:"start"`
	End   *string `json:"end,omitempty"`
}

type pageRef struct {
	ID string `json:"id"`
}

// UnmarshalJSON never fails: an unreadable value becomes PropUnknown.
func (p *Property) UnmarshalJSON(data []byte) error {
	*p = decodeProperty(data)
	return nil
}

func decodeProperty(data []byte) Property {
	var head struct {
		Type PropertyType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Property{Type: PropUnknown}
	}

	p := Property{Type: head.Type}
	var err error

	switch head.Type {
	case PropTitle:
		var v struct {
			Title []textItem `json:"title"`
		}
		err = json.Unmarshal(data, &v)
		p.Text = plainText(v.Title)
	case PropRichText:
		var v struct {
			RichText []textItem `json:"rich_text"`
		}
		err = json.Unmarshal(data, &v)
		p.Text = plainText(v.RichText)
	case PropNumber:
		var v struct {
			Number *float64 `json:"number"`
		}
		err = json.Unmarshal(data, &v)
		p.Number = v.Number
	case PropSelect:
		var v struct {
			Select *option `json:"select"`
		}
		err = json.Unmarshal(data, &v)
		if v.Select != nil {
			p.Name = v.Select.Name
		}
	case PropStatus:
		var v struct {
			Status *option `json:"status"`
		}
		err = json.Unmarshal(data, &v)
		if v.Status != nil {
			p.Name = v.Status.Name
		}
	case PropMultiSelect:
		var v struct {
			MultiSelect []option `json:"multi_select"`
		}
		err = json.Unmarshal(data, &v)
		for _, o := range v.MultiSelect {
			p.Names = append(p.Names, o.Name)
		}
	case PropDate:
		var v struct {
			Date *dateValue `json:"date"`
		}
		err = json.Unmarshal(data, &v)
		if v.Date != nil {
			p.Start = v.Date.Start
			if v.Date.End != nil {
				p.End = *v.Date.End
			}
		}
	case PropCheckbox:
		var v struct {
			Checkbox bool `json:"checkbox"`
		}
		err = json.Unmarshal(data, &v)
		p.Checked = v.Checkbox
	case PropRelation:
		var v struct {
			Relation []pageRef `json:"relation"`
		}
		err = json.Unmarshal(data, &v)
		for _, r := range v.Relation {
			p.Relation = append(p.Relation, r.ID)
		}
	case PropURL:
		var v struct {
			URL *string `json:"url"`
		}
		err = json.Unmarshal(data, &v)
		if v.URL != nil {
			p.URL = *v.URL
		}
	case PropLastEditedTime:
		var v struct {
			LastEditedTime string `json:"last_edited_time"`
		}
		err = json.Unmarshal(data, &v)
		p.Time = v.LastEditedTime
	default:
		return Property{Type: PropUnknown}
	}

	if err != nil {
		return Property{Type: PropUnknown}
	}
	return p
}

// MarshalJSON writes the request form of the property. Read-only and
// unknown types marshal as null.
func (p Property) MarshalJSON() ([]byte, error) {
	var v any
	switch p.Type {
	case PropTitle:
		v = map[string]any{"title": textItems(p.Text)}
	case PropRichText:
		v = map[string]any{"rich_text": textItems(p.Text)}
	case PropNumber:
		v = map[string]any{"number": p.Number}
	case PropSelect:
		v = map[string]any{"select": optionOrNil(p.Name)}
	case PropStatus:
		v = map[string]any{"status": optionOrNil(p.Name)}
	case PropMultiSelect:
		opts := make([]option, 0, len(p.Names))
		for _, n := range p.Names {
			opts = append(opts, option{Name: n})
		}
		v = map[string]any{"multi_select": opts}
	case PropDate:
		if p.Start == "" {
			v = map[string]any{"date": nil}
		} else {
			d := dateValue{Start: p.Start}
			if p.End != "" {
				d.End = &p.End
			}
			v = map[string]any{"date": d}
		}
	case PropCheckbox:
		v = map[string]any{"checkbox": p.Checked}
	case PropRelation:
		refs := make([]pageRef, 0, len(p.Relation))
		for _, id := range p.Relation {
			refs = append(refs, pageRef{ID: id})
		}
		v = map[string]any{"relation": refs}
	case PropURL:
		v = map[string]any{"url": p.URL}
	}
	return json.Marshal(v)
}

func plainText(items []textItem) string {
	var b strings.Builder
	for _, it := range items {
		switch {
		case it.PlainText != "":
			b.WriteString(it.PlainText)
		case it.Text != nil:
			b.WriteString(it.Text.Content)
		}
	}
	return b.String()
}

func textItems(s string) []textItem {
	if s == "" {
		return []textItem{}
	}
	item := textItem{Text: &struct {
		Content string `json:"content"`
	}{Content: s}}
	return []textItem{item}
}

func optionOrNil(name string) *option {
	if name == "" {
		return nil
	}
	return &option{Name: name}
}
