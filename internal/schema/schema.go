// Package schema normalizes heterogeneous source headers onto the canonical
// course-catalog field names. Mapping is a pure function of the header set
// and the alias table.
package schema

import (
	"strings"

	"coursecheck/pkg/contracts/domain"
)

// Mapping is the resolved correspondence between raw source headers and
// canonical fields for one dataset.
type Mapping struct {
	// ByHeader maps each raw header to the canonical field it resolved to.
	// Headers that matched nothing are not present.
	ByHeader map[string]domain.Field
	// Absent lists canonical fields with no matching source column. Rows in
	// such a dataset fail the corresponding rule with a Blank error instead
	// of crashing the run.
	Absent []domain.Field
	// Unmapped preserves raw headers that matched no canonical field, in
	// source order. They are ignored by the rule set but kept for export.
	Unmapped []string
}

// IsAbsent reports whether the canonical field had no source column.
func (m *Mapping) IsAbsent(f domain.Field) bool {
	for _, a := range m.Absent {
		if a == f {
			return true
		}
	}
	return false
}

// Map resolves raw headers against the canonical schema. All exact matches
// across the header set claim their fields first, so an alias column can
// never shadow a canonical header regardless of column order. The alias table
// of historical header spellings is consulted second; headers matched by
// neither are preserved as unmapped. Each canonical field resolves to at most
// one raw column: once claimed, later candidates for the same field go to
// Unmapped.
func Map(headers []string, aliases map[string]string) *Mapping {
	canonical := make(map[string]domain.Field, len(domain.CanonicalFields()))
	for _, f := range domain.CanonicalFields() {
		canonical[string(f)] = f
	}

	m := &Mapping{ByHeader: make(map[string]domain.Field)}
	claimed := make(map[domain.Field]bool)

	exact := make([]bool, len(headers))
	for i, raw := range headers {
		if f, ok := canonical[strings.TrimSpace(raw)]; ok && !claimed[f] {
			m.ByHeader[raw] = f
			claimed[f] = true
			exact[i] = true
		}
	}

	for i, raw := range headers {
		if exact[i] {
			continue
		}

		if target, ok := lookupAlias(strings.TrimSpace(raw), aliases); ok {
			if f, known := canonical[target]; known && !claimed[f] {
				m.ByHeader[raw] = f
				claimed[f] = true
				continue
			}
		}

		m.Unmapped = append(m.Unmapped, raw)
	}

	for _, f := range domain.CanonicalFields() {
		if !claimed[f] {
			m.Absent = append(m.Absent, f)
		}
	}

	return m
}

// lookupAlias resolves a header through the alias table. Exact alias entries
// are tried first, then prefix matches, mirroring how truncated headers show
// up in catalog extracts ("Instituti" for "Institution Id"). When several
// aliases prefix the same header the longest one wins, ties broken
// lexicographically, so resolution does not depend on map iteration order.
func lookupAlias(header string, aliases map[string]string) (string, bool) {
	if target, ok := aliases[header]; ok {
		return target, true
	}
	best := ""
	for alias := range aliases {
		if !strings.HasPrefix(header, alias) {
			continue
		}
		if len(alias) > len(best) || (len(alias) == len(best) && alias < best) {
			best = alias
		}
	}
	if best == "" {
		return "", false
	}
	return aliases[best], true
}

// BuildRow converts one raw record into a domain.Row using the mapping.
// Cells beyond the header count are dropped; short records leave mapped
// fields empty rather than missing, so blankness stays distinguishable from
// column absence.
func (m *Mapping) BuildRow(index int, headers []string, record []string) domain.Row {
	row := domain.Row{
		Index:  index,
		Values: make(map[domain.Field]string),
	}

	for i, raw := range headers {
		var cell string
		if i < len(record) {
			cell = record[i]
		}
		if f, ok := m.ByHeader[raw]; ok {
			row.Values[f] = cell
		} else {
			if row.Extra == nil {
				row.Extra = make(map[string]string)
			}
			row.Extra[raw] = cell
		}
	}

	return row
}
