// Package parser classifies search input and validates entries before submission.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mweigel/bookcat/models"
)

// isbnPattern matches ISBN-shaped input: an optional 978/979 prefix, three
// digit groups (1-5, 1-7, 1-7 digits) and a digit-or-X check digit, with
// groups separated by hyphen or space.
var isbnPattern = regexp.MustCompile(`^(?:97[89][- ]?)?\d{1,5}[- ]?\d{1,7}[- ]?\d{1,7}[- ]?[\dX]$`)

// IsISBN reports whether the query text should be sent as an ISBN filter
// rather than as an identifier path segment.
func IsISBN(text string) bool {
	return isbnPattern.MatchString(strings.TrimSpace(text))
}

// ValidateBook ensures an entry is complete enough to submit to the backend.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.Title.Main) == "" {
		return fmt.Errorf("book missing title")
	}
	if !IsISBN(b.ISBN) {
		return fmt.Errorf("invalid isbn %q", b.ISBN)
	}
	if b.Rating < 1 || b.Rating > 5 {
		return fmt.Errorf("rating %d out of range 1-5", b.Rating)
	}
	if b.Price < 0 {
		return fmt.Errorf("price cannot be negative")
	}
	if b.Discount < 0 || b.Discount > 1 {
		return fmt.Errorf("discount must be a fraction between 0 and 1")
	}
	if b.MediaType != "" && !b.MediaType.Valid() {
		return fmt.Errorf("unknown media type %q", b.MediaType)
	}
	return nil
}
