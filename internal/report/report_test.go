package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursecheck/pkg/contracts/domain"
)

func resultFixture() *domain.ValidationResult {
	return &domain.ValidationResult{
		RunID:  "run-1",
		Status: domain.RunStatusFinished,
		Source: "fixture.csv",
		Rows: []domain.RowResult{
			{
				Row: domain.Row{
					Index: 0,
					Values: map[domain.Field]string{
						domain.FieldCourseID:   "101",
						domain.FieldCourseName: "Engineering",
					},
					Extra: map[string]string{"Internal Notes": "keep"},
				},
				Phase: domain.RowPhaseFinal,
			},
			{
				Row: domain.Row{
					Index: 1,
					Values: map[domain.Field]string{
						domain.FieldCourseID:   "abc",
						domain.FieldCourseName: "bad name",
					},
				},
				Errors: []domain.ValidationError{
					{RowIndex: 1, Field: domain.FieldCourseName, Kind: domain.KindCapitalization, Message: "bad", Value: "bad name"},
					{RowIndex: 1, Field: domain.FieldCourseID, Kind: domain.KindNumeric, Message: "not a number", Value: "abc"},
					{RowIndex: 1, Field: domain.FieldCourseID, Kind: domain.KindUnique, Message: "dup", Value: "abc"},
				},
				Phase: domain.RowPhaseFinal,
			},
		},
		Counts: map[domain.ErrorKind]int{
			domain.KindCapitalization: 1,
			domain.KindNumeric:        1,
			domain.KindUnique:         1,
		},
	}
}

func TestBuildSummary(t *testing.T) {
	rep := Build(resultFixture())

	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, "fixture.csv", rep.Source)
	assert.Equal(t, 2, rep.Summary.TotalRows)
	assert.Equal(t, 3, rep.Summary.TotalErrors)
	assert.Equal(t, 1, rep.Summary.RowsWithErrors)
	assert.Equal(t, domain.RunStatusFinished, rep.Summary.Status)
	assert.Equal(t, 1, rep.Summary.ByKind[domain.KindCapitalization])
	assert.Equal(t, 2, rep.Summary.ByField[domain.FieldCourseID])
}

func TestBuildHeaders(t *testing.T) {
	rep := Build(resultFixture())

	want := len(domain.CanonicalFields()) + 1
	require.Len(t, rep.Headers, want)
	assert.Equal(t, string(domain.FieldInstitutionID), rep.Headers[0])
	assert.Equal(t, "Internal Notes", rep.Headers[want-1], "extra columns follow canonical fields")
}

func TestBuildGridAnnotations(t *testing.T) {
	rep := Build(resultFixture())
	require.Len(t, rep.Rows, 2)

	clean := rep.Rows[0]
	assert.Equal(t, 0, clean.ErrorCount)
	for _, cell := range clean.Cells {
		assert.Nil(t, cell.Classification)
	}
	// Extra column value survives into the grid.
	assert.Equal(t, "keep", clean.Cells[len(clean.Cells)-1].Value)

	flagged := rep.Rows[1]
	assert.Equal(t, 3, flagged.ErrorCount)

	idx := indexOf(rep.Headers, string(domain.FieldCourseID))
	cell := flagged.Cells[idx]
	require.NotNil(t, cell.Classification)
	// Two errors hit Course Id; the first raised one wins the cell.
	assert.Equal(t, domain.KindNumeric, cell.Kind)
	assert.Equal(t, "FFE6E6", cell.Classification.Color)

	nameIdx := indexOf(rep.Headers, string(domain.FieldCourseName))
	require.NotNil(t, flagged.Cells[nameIdx].Classification)
	assert.Equal(t, domain.KindCapitalization, flagged.Cells[nameIdx].Kind)
}

func TestBuildFlatErrorsOrdered(t *testing.T) {
	rep := Build(resultFixture())
	require.Len(t, rep.Errors, 3)

	// Ordered by row, then field name.
	assert.Equal(t, domain.FieldCourseID, rep.Errors[0].Field)
	assert.Equal(t, domain.FieldCourseID, rep.Errors[1].Field)
	assert.Equal(t, domain.FieldCourseName, rep.Errors[2].Field)
	for _, e := range rep.Errors {
		assert.Equal(t, 1, e.RowIndex)
	}
}

func TestBuildCancelledPartial(t *testing.T) {
	result := resultFixture()
	result.Status = domain.RunStatusCancelled

	rep := Build(result)
	assert.Equal(t, domain.RunStatusCancelled, rep.Summary.Status)
	assert.Equal(t, 2, rep.Summary.TotalRows, "partial rows are reported like any other")
}

func indexOf(headers []string, want string) int {
	for i, h := range headers {
		if h == want {
			return i
		}
	}
	return -1
}
