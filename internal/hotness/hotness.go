// Package hotness scores how often a trade-area center is requested.
package hotness

import "strings"

// Interface keeps one decaying score per key built by Key.
type Interface interface {
	Inc(key string)
	Score(key string) float64
	Reset(keys ...string)
}

// Key scopes the H3 cell of a center to the dataset it was rendered over.
func Key(dataset, cell string) string {
	if dataset == "" || cell == "" {
		return ""
	}
	return dataset + ":" + cell
}

// DatasetOf returns the dataset part of a key built by Key.
func DatasetOf(key string) string {
	ds, _, _ := strings.Cut(key, ":")
	return ds
}

// reachSlack absorbs the decay between hits that arrive together, so N
// hits within a second reach a threshold of N.
const reachSlack = 0.005

// Reached reports whether score has reached threshold.
func Reached(score, threshold float64) bool {
	return score >= threshold*(1-reachSlack)
}
