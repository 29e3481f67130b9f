// Package rules implements the fixed field-level and cross-field rule table
// for course-catalog records. Data errors are collected as values and never
// halt a run.
package rules

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"coursecheck/internal/config"
	"coursecheck/pkg/contracts/domain"
)

// dateLayout is the only accepted start-date form: zero-padded, valid
// calendar date.
const dateLayout = "2006-01-02"

// Engine runs the rule table against rows. It is stateless per row; all
// cross-row state lives in the Context.
type Engine struct {
	delimiter  string
	lowercase  map[string]bool
	show       map[string]bool
	status     map[string]bool
	studyModes map[string]bool
	showList   []string
	statusList []string
	modesList  []string
}

// NewEngine builds an engine from the rules configuration.
func NewEngine(cfg config.RulesConfig) *Engine {
	return &Engine{
		delimiter:  cfg.Delimiter,
		lowercase:  toSet(cfg.LowercaseWords),
		show:       toSet(cfg.AllowedShow),
		status:     toSet(cfg.AllowedStatus),
		studyModes: toSet(cfg.AllowedStudyModes),
		showList:   cfg.AllowedShow,
		statusList: cfg.AllowedStatus,
		modesList:  cfg.AllowedStudyModes,
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Validate runs every synchronous rule against one row. It returns the data
// errors raised plus the URLs that passed syntactic checks and still need a
// reachability probe. Reachability itself is delegated to the URL checker;
// this pass never blocks on the network.
func (e *Engine) Validate(row domain.Row, rc *Context) ([]domain.ValidationError, []string) {
	var errs []domain.ValidationError
	var probes []string

	add := func(field domain.Field, kind domain.ErrorKind, msg, value string) {
		errs = append(errs, domain.ValidationError{
			RowIndex: row.Index,
			Field:    field,
			Kind:     kind,
			Message:  msg,
			Value:    value,
		})
	}

	// A canonical field with no source column fails as Blank on every row;
	// the remaining rules for that field are skipped.
	missing := func(field domain.Field) bool {
		if rc.IsAbsent(field) {
			add(field, domain.KindBlank, fmt.Sprintf("%s column is missing from the source", field), "")
			return true
		}
		return false
	}

	if !missing(domain.FieldInstitutionID) {
		v, _ := row.Value(domain.FieldInstitutionID)
		if err := checkInteger(v); err != "" {
			add(domain.FieldInstitutionID, domain.KindNumeric, "Institution Id "+err, v)
		}
	}

	if !missing(domain.FieldCourseID) {
		v, _ := row.Value(domain.FieldCourseID)
		if err := checkInteger(v); err != "" {
			add(domain.FieldCourseID, domain.KindNumeric, "Course Id "+err, v)
		} else {
			id := strings.TrimSpace(v)
			if first, dup := rc.recordCourseID(id, row.Index); dup {
				add(domain.FieldCourseID, domain.KindUnique,
					fmt.Sprintf("Course Id already used by row %d", first+1), v)
			}
		}
	}

	if !missing(domain.FieldCourseName) {
		v, _ := row.Value(domain.FieldCourseName)
		errs = append(errs, e.checkCourseName(row.Index, v)...)
	}

	for _, field := range []domain.Field{domain.FieldL3Tagging, domain.FieldDegreeType, domain.FieldCourseType} {
		if missing(field) {
			continue
		}
		v, _ := row.Value(field)
		if strings.TrimSpace(v) == "" {
			add(field, domain.KindBlank, fmt.Sprintf("%s must not be blank", field), v)
		}
	}

	if !missing(domain.FieldCourseStartDate) {
		v, _ := row.Value(domain.FieldCourseStartDate)
		errs = append(errs, e.checkStartDates(row.Index, v)...)
	}

	if !missing(domain.FieldCourseLevelURL) {
		v, _ := row.Value(domain.FieldCourseLevelURL)
		urlErrs, urls := e.checkURLSyntax(row.Index, v)
		errs = append(errs, urlErrs...)
		probes = append(probes, urls...)
	}

	if !missing(domain.FieldCourseIntakeIDs) {
		intakes, _ := row.Value(domain.FieldCourseIntakeIDs)
		dates, _ := row.Value(domain.FieldCourseStartDate)
		datesPresent := !rc.IsAbsent(domain.FieldCourseStartDate)
		errs = append(errs, e.checkIntakeIDs(row.Index, intakes, dates, datesPresent, rc)...)
	}

	if !missing(domain.FieldShow) {
		v, _ := row.Value(domain.FieldShow)
		errs = append(errs, checkAllowed(row.Index, domain.FieldShow, v, e.show, e.showList)...)
	}

	if !missing(domain.FieldCourseStatus) {
		v, _ := row.Value(domain.FieldCourseStatus)
		errs = append(errs, e.checkStatusList(row.Index, v)...)
	}

	if !missing(domain.FieldStudyMode) {
		v, _ := row.Value(domain.FieldStudyMode)
		errs = append(errs, checkAllowed(row.Index, domain.FieldStudyMode, v, e.studyModes, e.modesList)...)
	}

	return errs, probes
}

// Finalize reports the deferred cross-row checks once every row has been
// seen: intake ids reused across rows are flagged on the later row, the
// first occurrence stays accepted.
func (e *Engine) Finalize(rc *Context) []domain.ValidationError {
	return rc.takeDeferred()
}

// checkInteger validates a mandatory whole-number cell. It returns an empty
// string when valid, otherwise the message suffix.
func checkInteger(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "cannot be blank"
	}
	if _, err := strconv.ParseInt(trimmed, 10, 64); err != nil {
		return "must be a whole number"
	}
	return ""
}

// checkCourseName enforces title capitalization: the name opens with an
// uppercase letter, every word is capitalized, except the configured
// lowercase words which must stay lowercase unless they open the name.
func (e *Engine) checkCourseName(rowIndex int, v string) []domain.ValidationError {
	name := strings.TrimSpace(v)
	fail := func(msg string) []domain.ValidationError {
		return []domain.ValidationError{{
			RowIndex: rowIndex,
			Field:    domain.FieldCourseName,
			Kind:     domain.KindCapitalization,
			Message:  msg,
			Value:    v,
		}}
	}

	if name == "" {
		return fail("Course Name cannot be blank")
	}

	first, _ := utf8.DecodeRuneInString(name)
	if unicode.IsLetter(first) && !unicode.IsUpper(first) {
		return fail("Course Name must start with a capital letter")
	}

	for i, word := range strings.Fields(name) {
		lower := strings.ToLower(word)
		r, _ := utf8.DecodeRuneInString(word)

		if i > 0 && e.lowercase[lower] {
			if word != lower {
				return fail(fmt.Sprintf("%q must be lowercase", word))
			}
			continue
		}
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return fail(fmt.Sprintf("%q must be capitalized", word))
		}
	}
	return nil
}

// checkStartDates validates a start-date cell, which may hold a delimited
// list. Empty elements are delimiter misuse and classified Blank; non-empty
// elements must be strict zero-padded calendar dates.
func (e *Engine) checkStartDates(rowIndex int, v string) []domain.ValidationError {
	if strings.TrimSpace(v) == "" {
		return []domain.ValidationError{{
			RowIndex: rowIndex,
			Field:    domain.FieldCourseStartDate,
			Kind:     domain.KindDate,
			Message:  "Course Start Date cannot be blank",
			Value:    v,
		}}
	}

	var errs []domain.ValidationError
	for _, part := range strings.Split(v, e.delimiter) {
		part = strings.TrimSpace(part)
		if part == "" {
			errs = append(errs, domain.ValidationError{
				RowIndex: rowIndex,
				Field:    domain.FieldCourseStartDate,
				Kind:     domain.KindBlank,
				Message:  "empty entry in date list",
				Value:    v,
			})
			continue
		}
		if _, err := time.Parse(dateLayout, part); err != nil {
			errs = append(errs, domain.ValidationError{
				RowIndex: rowIndex,
				Field:    domain.FieldCourseStartDate,
				Kind:     domain.KindDate,
				Message:  fmt.Sprintf("invalid date %q, must be YYYY-MM-DD", part),
				Value:    v,
			})
		}
	}
	return errs
}

// checkURLSyntax validates URL cells syntactically and returns the URLs that
// still need a reachability probe. Cells may hold a delimited list.
func (e *Engine) checkURLSyntax(rowIndex int, v string) ([]domain.ValidationError, []string) {
	fail := func(kind domain.ErrorKind, msg string) domain.ValidationError {
		return domain.ValidationError{
			RowIndex: rowIndex,
			Field:    domain.FieldCourseLevelURL,
			Kind:     kind,
			Message:  msg,
			Value:    v,
		}
	}

	if strings.TrimSpace(v) == "" {
		return []domain.ValidationError{fail(domain.KindURL, "Course Level URL cannot be blank")}, nil
	}

	var errs []domain.ValidationError
	var probes []string
	for _, part := range strings.Split(v, e.delimiter) {
		part = strings.TrimSpace(part)
		if part == "" {
			errs = append(errs, fail(domain.KindBlank, "empty entry in URL list"))
			continue
		}
		if !validURL(part) {
			errs = append(errs, fail(domain.KindURL, fmt.Sprintf("invalid URL format: %s", part)))
			continue
		}
		probes = append(probes, part)
	}
	return errs, probes
}

// validURL accepts http(s) URLs with a host. A missing scheme defaults to
// https before parsing, matching the checker's normalization.
func validURL(raw string) bool {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// checkIntakeIDs enforces the intake-id rules: the id count must match the
// paired start-date count, ids must be unique within the row, and ids reused
// by an earlier row are queued as deferred errors.
func (e *Engine) checkIntakeIDs(rowIndex int, intakes, dates string, datesPresent bool, rc *Context) []domain.ValidationError {
	var errs []domain.ValidationError
	add := func(kind domain.ErrorKind, msg string) {
		errs = append(errs, domain.ValidationError{
			RowIndex: rowIndex,
			Field:    domain.FieldCourseIntakeIDs,
			Kind:     kind,
			Message:  msg,
			Value:    intakes,
		})
	}

	var ids []string
	for _, part := range strings.Split(intakes, e.delimiter) {
		part = strings.TrimSpace(part)
		if part == "" {
			if strings.TrimSpace(intakes) != "" {
				add(domain.KindBlank, "empty entry in intake id list")
			}
			continue
		}
		ids = append(ids, part)
	}

	if datesPresent {
		dateCount := countElements(dates, e.delimiter)
		if len(ids) != dateCount {
			add(domain.KindCount, fmt.Sprintf("intake id count (%d) must match start date count (%d)", len(ids), dateCount))
		}
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			add(domain.KindCount, fmt.Sprintf("duplicate intake id %q in row", id))
			continue
		}
		seen[id] = true

		if first, dup := rc.recordIntakeID(id, rowIndex); dup {
			rc.addDeferred(domain.ValidationError{
				RowIndex: rowIndex,
				Field:    domain.FieldCourseIntakeIDs,
				Kind:     domain.KindCount,
				Message:  fmt.Sprintf("intake id %q already used by row %d", id, first+1),
				Value:    intakes,
			})
		}
	}

	return errs
}

// countElements counts non-empty delimited elements.
func countElements(v, delimiter string) int {
	n := 0
	for _, part := range strings.Split(v, delimiter) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}

// checkAllowed enforces an exact, case-sensitive membership rule.
func checkAllowed(rowIndex int, field domain.Field, v string, allowed map[string]bool, display []string) []domain.ValidationError {
	trimmed := strings.TrimSpace(v)
	fail := func(msg string) []domain.ValidationError {
		return []domain.ValidationError{{
			RowIndex: rowIndex,
			Field:    field,
			Kind:     domain.KindStatus,
			Message:  msg,
			Value:    v,
		}}
	}

	if trimmed == "" {
		return fail(fmt.Sprintf("%s cannot be blank", field))
	}
	if !allowed[trimmed] {
		return fail(fmt.Sprintf("%s must be one of: %s", field, strings.Join(display, ", ")))
	}
	return nil
}

// checkStatusList validates the course status cell, which may carry one
// status per intake as a delimited list.
func (e *Engine) checkStatusList(rowIndex int, v string) []domain.ValidationError {
	if strings.TrimSpace(v) == "" {
		return checkAllowed(rowIndex, domain.FieldCourseStatus, v, e.status, e.statusList)
	}

	var errs []domain.ValidationError
	for _, part := range strings.Split(v, e.delimiter) {
		part = strings.TrimSpace(part)
		if part == "" {
			errs = append(errs, domain.ValidationError{
				RowIndex: rowIndex,
				Field:    domain.FieldCourseStatus,
				Kind:     domain.KindBlank,
				Message:  "empty entry in status list",
				Value:    v,
			})
			continue
		}
		if !e.status[part] {
			errs = append(errs, domain.ValidationError{
				RowIndex: rowIndex,
				Field:    domain.FieldCourseStatus,
				Kind:     domain.KindStatus,
				Message:  fmt.Sprintf("Course Status must be one of: %s", strings.Join(e.statusList, ", ")),
				Value:    v,
			})
		}
	}
	return errs
}
