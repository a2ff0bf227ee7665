package models

// ResultKind tags the shape a query response arrived in.
type ResultKind int

const (
	// KindSingle is a direct single-entry fetch.
	KindSingle ResultKind = iota
	// KindFlat is an unpaginated sequence of entries.
	KindFlat
	// KindPaged is a paginated envelope with page metadata.
	KindPaged
)

// PageInfo is the page metadata of a paginated envelope. Number is 0-based.
type PageInfo struct {
	Number        int `json:"number"`
	TotalPages    int `json:"totalPages"`
	TotalElements int `json:"totalElements"`
}

// QueryResult is the normalized form of one query response. Exactly one shape
// is produced per query; downstream code never inspects raw response shapes.
// A result is replaced wholesale by the next query, never merged, except for
// the targeted in-place updates the mutators perform.
type QueryResult struct {
	Kind    ResultKind
	Entries []Book
	Page    *PageInfo // set only for KindPaged
}

// Find returns a pointer into Entries for the entry with the given id, or nil.
func (r *QueryResult) Find(id string) *Book {
	if r == nil {
		return nil
	}
	for i := range r.Entries {
		if string(r.Entries[i].ID) == id {
			return &r.Entries[i]
		}
	}
	return nil
}

// Remove filters the entry with the given id out of the result. It reports
// whether an entry was removed; removing an absent id is a no-op.
func (r *QueryResult) Remove(id string) bool {
	if r == nil {
		return false
	}
	for i := range r.Entries {
		if string(r.Entries[i].ID) == id {
			r.Entries = append(r.Entries[:i], r.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of entries currently held.
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Entries)
}
