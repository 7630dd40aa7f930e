// Package keys builds Redis keys for cached render results.
package keys

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/chomoku/kyoto-hexmap/internal/core/model"
)

const renderPrefix = "render"

// RenderKey returns render:<variant>:<dataset>:<column>:<hash>. The readable
// segments are sanitized to ASCII; the hash covers the whole normalized
// request so two requests share a key only if they render the same result.
func RenderKey(variant string, req model.RenderRequest) string {
	norm := normalize(req)
	sum := xxhash.Sum64String(variant + "\x00" + norm)

	col := sanitizeForKey(req.Column)
	const maxColLen = 48
	if len(col) > maxColLen {
		col = col[:maxColLen]
	}
	return fmt.Sprintf("%s%s:f=%016x", DatasetPrefix(variant, req.Dataset), col, sum)
}

// DatasetPrefix is the prefix shared by every key of one dataset.
func DatasetPrefix(variant, dataset string) string {
	return fmt.Sprintf("%s:%s:%s:", renderPrefix, sanitizeForKey(variant), sanitizeForKey(dataset))
}

// normalize writes the request fields in a fixed order. Floats use the
// shortest exact representation so 135.768 and 135.7680 agree.
func normalize(r model.RenderRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(r.Dataset))
	b.WriteByte('|')
	b.WriteString(strings.TrimSpace(r.Column))
	fmt.Fprintf(&b, "|bins=%d|fac=%t|data=%t|src=%t|top=%d",
		r.Bins, r.ShowFacilities, r.ShowData, r.ShowSources, r.TopN)
	if ta := r.TradeArea; ta != nil {
		b.WriteString("|ta=")
		b.WriteString(strconv.FormatFloat(ta.Lon, 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(ta.Lat, 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(ta.RadiusM, 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strings.ToLower(strings.TrimSpace(ta.Policy)))
	}
	return b.String()
}

func sanitizeForKey(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
