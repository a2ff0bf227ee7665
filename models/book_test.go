package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTitleUnmarshalPlainString(t *testing.T) {
	var book Book
	if err := json.Unmarshal([]byte(`{"id":"90","titel":"Der Prozess"}`), &book); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if book.Title.Main != "Der Prozess" || book.Title.Subtitle != "" {
		t.Fatalf("title = %+v, want plain 'Der Prozess'", book.Title)
	}

	// Plain titles must round-trip as plain strings for full-entry replacement.
	out, err := json.Marshal(&book)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"titel":"Der Prozess"`) {
		t.Fatalf("plain title did not round-trip: %s", out)
	}
}

func TestTitleUnmarshalStructured(t *testing.T) {
	var book Book
	payload := `{"id":"90","titel":{"titel":"Der Prozess","untertitel":"Ein Roman"}}`
	if err := json.Unmarshal([]byte(payload), &book); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if book.Title.Main != "Der Prozess" || book.Title.Subtitle != "Ein Roman" {
		t.Fatalf("title = %+v, want structured title with subtitle", book.Title)
	}
	if got := book.Title.String(); got != "Der Prozess: Ein Roman" {
		t.Fatalf("String() = %q", got)
	}

	out, err := json.Marshal(&book)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"untertitel":"Ein Roman"`) {
		t.Fatalf("structured title did not round-trip: %s", out)
	}
}

func TestIDAcceptsStringAndNumber(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    ID
	}{
		{name: "string id", payload: `{"id":"90"}`, want: "90"},
		{name: "numeric id", payload: `{"id":90}`, want: "90"},
		{name: "null id", payload: `{"id":null}`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var book Book
			if err := json.Unmarshal([]byte(tt.payload), &book); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if book.ID != tt.want {
				t.Fatalf("id = %q, want %q", book.ID, tt.want)
			}
		})
	}
}

func TestQueryResultFindAndRemove(t *testing.T) {
	result := &QueryResult{
		Kind: KindPaged,
		Entries: []Book{
			{ID: "1", Rating: 2},
			{ID: "2", Rating: 4},
		},
		Page: &PageInfo{Number: 0, TotalPages: 1, TotalElements: 2},
	}

	entry := result.Find("2")
	if entry == nil {
		t.Fatalf("expected to find entry 2")
	}
	entry.Rating = 5
	if result.Entries[1].Rating != 5 {
		t.Fatalf("Find must return a pointer into the result")
	}

	if !result.Remove("1") {
		t.Fatalf("expected removal of entry 1")
	}
	if result.Len() != 1 || result.Entries[0].ID != "2" {
		t.Fatalf("unexpected entries after removal: %+v", result.Entries)
	}
	// removing an absent id is a no-op
	if result.Remove("1") {
		t.Fatalf("second removal should report false")
	}

	var nilResult *QueryResult
	if nilResult.Find("1") != nil || nilResult.Remove("1") || nilResult.Len() != 0 {
		t.Fatalf("nil result helpers should be no-ops")
	}
}

func TestDiscountPercent(t *testing.T) {
	book := Book{Discount: 0.25}
	if got := book.DiscountPercent(); got != 25 {
		t.Fatalf("DiscountPercent() = %v, want 25", got)
	}
}
