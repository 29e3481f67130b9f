// Package classify maps validation error kinds to the display classification
// used for highlighting and summaries.
package classify

import (
	"fmt"

	"coursecheck/pkg/contracts/domain"
)

// Severity ranks how strongly a classification should be surfaced.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Classification is the display treatment for one error kind.
type Classification struct {
	Kind     domain.ErrorKind `json:"kind"`
	Color    string           `json:"color"` // RGB hex fill, no leading '#'
	Severity Severity         `json:"severity"`
}

// table is the fixed one-to-one mapping from error kind to classification.
// The fills match the historical export palette.
var table = map[domain.ErrorKind]Classification{
	domain.KindNumeric:        {domain.KindNumeric, "FFE6E6", SeverityError},
	domain.KindUnique:         {domain.KindUnique, "FFB366", SeverityError},
	domain.KindCapitalization: {domain.KindCapitalization, "FFFF99", SeverityWarning},
	domain.KindBlank:          {domain.KindBlank, "FFCCCC", SeverityError},
	domain.KindDate:           {domain.KindDate, "CCE5FF", SeverityError},
	domain.KindURL:            {domain.KindURL, "FF9999", SeverityError},
	domain.KindCount:          {domain.KindCount, "CC99FF", SeverityError},
	domain.KindStatus:         {domain.KindStatus, "99CCFF", SeverityError},
}

// For returns the classification for a kind. Classification is total over
// the kinds the rule engine and URL checker can produce; an unknown kind is
// a programming error, not a data error, and panics.
func For(kind domain.ErrorKind) Classification {
	c, ok := table[kind]
	if !ok {
		panic(fmt.Sprintf("classify: unknown error kind %q", kind))
	}
	return c
}

// All returns every classification in the fixed kind order.
func All() []Classification {
	out := make([]Classification, 0, len(table))
	for _, kind := range domain.ErrorKinds() {
		out = append(out, table[kind])
	}
	return out
}
