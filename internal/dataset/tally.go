package dataset

import (
	"errors"
	"sort"
	"strings"
)

// FullWidthSpace separates department names in the facility dataset.
const FullWidthSpace = "　"

type CategoryCount struct {
	Token string `json:"token"`
	Count int    `json:"count"`
}

type CategoryTally struct {
	Entries []CategoryCount `json:"entries"`
	// Tokens is the total number of tokens counted.
	Tokens  int `json:"tokens"`
	Skipped int `json:"skipped"`
}

// Top returns at most n entries; n <= 0 returns all of them.
func (t CategoryTally) Top(n int) []CategoryCount {
	if n <= 0 || n >= len(t.Entries) {
		return t.Entries
	}
	return t.Entries[:n]
}

// TallyCategories splits field on sep for every record and counts tokens,
// ordered by count descending with ties in first-seen order.
//
// Records whose field is missing, not text or blank are skipped. The tally
// is always returned; the error joins one *MissingFieldError per skipped
// record.
func TallyCategories(c *Collection, field, sep string) (CategoryTally, error) {
	if sep == "" {
		sep = FullWidthSpace
	}
	var out CategoryTally
	if c == nil {
		return out, nil
	}

	counts := make(map[string]int)
	var order []string
	var errs []error

	for i, r := range c.Records {
		v, ok := c.Value(i, field)
		s, isStr := v.(string)
		if !ok || !isStr || strings.TrimSpace(s) == "" {
			out.Skipped++
			errs = append(errs, &MissingFieldError{Row: r.Row, Field: field})
			continue
		}
		for tok := range strings.SplitSeq(s, sep) {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			if _, seen := counts[tok]; !seen {
				order = append(order, tok)
			}
			counts[tok]++
			out.Tokens++
		}
	}

	out.Entries = make([]CategoryCount, len(order))
	for i, tok := range order {
		out.Entries[i] = CategoryCount{Token: tok, Count: counts[tok]}
	}
	sort.SliceStable(out.Entries, func(i, j int) bool {
		return out.Entries[i].Count > out.Entries[j].Count
	})
	return out, errors.Join(errs...)
}
