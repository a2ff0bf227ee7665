package parser

import (
	"strings"
	"testing"

	"github.com/mweigel/bookcat/models"
)

func TestIsISBN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "isbn-13 with hyphens", input: "978-3-16-148410-0", want: true},
		{name: "isbn-13 with spaces", input: "978 3 16 148410 0", want: true},
		{name: "isbn-13 979 prefix", input: "979-8-6024-0545-3", want: true},
		{name: "isbn-10 with hyphens", input: "0-19-852663-6", want: true},
		{name: "isbn-10 unseparated", input: "019852663X", want: true},
		{name: "check digit X", input: "3-598-21508-X", want: true},
		{name: "surrounding whitespace", input: "  978-3-16-148410-0  ", want: true},
		{name: "plain identifier", input: "90", want: false},
		{name: "uuid identifier", input: "0e57b714-39a9-4b15-9a39-07c1b94e2587", want: false},
		{name: "letters", input: "buchtitel", want: false},
		{name: "empty", input: "", want: false},
		{name: "lowercase check digit", input: "3-598-21508-x", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsISBN(tt.input); got != tt.want {
				t.Fatalf("IsISBN(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateBook(t *testing.T) {
	valid := func() *models.Book {
		return &models.Book{
			ISBN:      "978-3-16-148410-0",
			Rating:    3,
			MediaType: models.Epub,
			Price:     19.99,
			Discount:  0.1,
			Title:     models.Title{Main: "Der Prozess"},
		}
	}

	if err := ValidateBook(valid()); err != nil {
		t.Fatalf("valid book should validate, got %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*models.Book)
		wantErr string
	}{
		{name: "nil title", mutate: func(b *models.Book) { b.Title = models.Title{} }, wantErr: "title"},
		{name: "bad isbn", mutate: func(b *models.Book) { b.ISBN = "not-an-isbn" }, wantErr: "isbn"},
		{name: "rating too high", mutate: func(b *models.Book) { b.Rating = 6 }, wantErr: "rating"},
		{name: "rating too low", mutate: func(b *models.Book) { b.Rating = 0 }, wantErr: "rating"},
		{name: "negative price", mutate: func(b *models.Book) { b.Price = -1 }, wantErr: "price"},
		{name: "discount above one", mutate: func(b *models.Book) { b.Discount = 1.5 }, wantErr: "discount"},
		{name: "unknown media type", mutate: func(b *models.Book) { b.MediaType = "VINYL" }, wantErr: "media type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := valid()
			tt.mutate(book)
			err := ValidateBook(book)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}

	if err := ValidateBook(nil); err == nil {
		t.Fatalf("nil book should not validate")
	}
}
