// Package postcode splits raw UK postcode strings into the geographic
// parts tracked by the area hierarchy.
package postcode

import (
	"regexp"
	"strings"
)

// Grammar: variable-length area letters, district digits (optionally with
// a trailing letter), a space, sector digit and two unit letters. The
// first alternative is the special "GIR 0AA" form.
var postcodeRe = regexp.MustCompile(`^(?:(?P<a1>[Gg][Ii][Rr])(?P<d1>) (?P<s1>0)(?P<u1>[Aa]{2}))|(?:(?:(?:(?P<a2>[A-Za-z])(?P<d2>[0-9]{1,2}))|(?:(?:(?P<a3>[A-Za-z][A-Ha-hJ-Yj-y])(?P<d3>[0-9]{1,2}))|(?:(?:(?P<a4>[A-Za-z])(?P<d4>[0-9][A-Za-z]))|(?:(?P<a5>[A-Za-z][A-Ha-hJ-Yj-y])(?P<d5>[0-9]?[A-Za-z]))))) (?P<s2>[0-9])(?P<u2>[A-Za-z]{2}))$`)

// Parts holds the derived granularity levels of a postcode.
type Parts struct {
	Outcode string
	Area    string
	Sector  string
}

// Parse extracts (outcode, area, sector) from a raw postcode string.
// Input that does not match the postcode grammar is not an error: it
// degrades to empty parts so downstream inserts proceed with blank area
// data instead of failing the record.
func Parse(raw string) Parts {
	m := postcodeRe.FindStringSubmatch(raw)
	if m == nil {
		return Parts{}
	}

	// Drop the full match and every group the losing alternatives left
	// empty; what remains is area letters, district, sector digit, unit.
	tokens := make([]string, 0, 4)
	for _, g := range m[1:] {
		if g != "" {
			tokens = append(tokens, g)
		}
	}
	if len(tokens) < 3 {
		return Parts{}
	}

	outcode := tokens[0] + tokens[1]
	return Parts{
		Outcode: outcode,
		Area:    tokens[0],
		Sector:  outcode + " " + strings.Join(tokens[2:], ""),
	}
}
