// Package models defines the data structures exchanged with the catalog backend.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MediaType enumerates the media formats the backend accepts.
type MediaType string

const (
	Epub      MediaType = "EPUB"
	Hardcover MediaType = "HARDCOVER"
	Paperback MediaType = "PAPERBACK"
)

// Valid reports whether the media type is one of the backend's fixed values.
func (m MediaType) Valid() bool {
	switch m {
	case Epub, Hardcover, Paperback:
		return true
	}
	return false
}

// ID is an opaque server-assigned identifier. The backend emits it either as
// a JSON string or as a bare number depending on the endpoint.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// Title is the entry title, which arrives either as a plain string or as a
// structured {titel, untertitel} object. A plain title round-trips as a plain
// string so full-entry replacement sends back what was received.
type Title struct {
	Main     string
	Subtitle string

	plain bool
}

type titleObject struct {
	Main     string `json:"titel"`
	Subtitle string `json:"untertitel,omitempty"`
}

func (t *Title) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode title: %w", err)
		}
		*t = Title{Main: s, plain: true}
		return nil
	}
	var obj titleObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode title: %w", err)
	}
	*t = Title{Main: obj.Main, Subtitle: obj.Subtitle}
	return nil
}

func (t Title) MarshalJSON() ([]byte, error) {
	if t.plain && t.Subtitle == "" {
		return json.Marshal(t.Main)
	}
	return json.Marshal(titleObject{Main: t.Main, Subtitle: t.Subtitle})
}

func (t Title) String() string {
	if t.Subtitle == "" {
		return t.Main
	}
	return t.Main + ": " + t.Subtitle
}

// Image is an illustration attached to an entry.
type Image struct {
	Label       string `json:"beschriftung"`
	ContentType string `json:"contentType"`
}

// Book is one catalog entry in the backend's schema. The client only ever
// holds transient, possibly stale copies; the backend owns the data.
type Book struct {
	ID          ID        `json:"id,omitempty"`
	ISBN        string    `json:"isbn"`
	Rating      int       `json:"rating"`
	MediaType   MediaType `json:"art,omitempty"`
	Price       float64   `json:"preis"`
	Discount    float64   `json:"rabatt"`
	Available   bool      `json:"lieferbar"`
	ReleaseDate string    `json:"datum,omitempty"`
	Homepage    string    `json:"homepage,omitempty"`
	Keywords    []string  `json:"schlagwoerter,omitempty"`
	Title       Title     `json:"titel"`
	Images      []Image   `json:"abbildungen,omitempty"`
}

// DiscountPercent renders the stored fraction as a percentage.
func (b *Book) DiscountPercent() float64 {
	return b.Discount * 100
}
