package rules

import (
	"sync"

	"coursecheck/internal/urlcheck"
	"coursecheck/pkg/contracts/domain"
)

// Context is the shared per-run state visible to every row: the course and
// intake ids seen so far, the fields that have no source column, and the
// reachability cache. It is created fresh at run start, owned by the
// orchestrator, and discarded at run end. Inserts and lookups are guarded
// because the URL worker pool completes concurrently with the main pass.
type Context struct {
	mu sync.Mutex

	// courseIDs maps a course id value to the index of the first row that
	// used it. The first occurrence is accepted; later rows are flagged.
	courseIDs map[string]int

	// intakeIDs maps an intake id value to the first row that used it.
	// Reuse across rows is a deferred check reported at Finalize.
	intakeIDs map[string]int

	// deferred collects cross-row errors discovered during the per-row
	// pass but reported only when the whole dataset has been seen.
	deferred []domain.ValidationError

	// absent marks canonical fields with no source column; every row fails
	// those fields with a Blank error.
	absent map[domain.Field]bool

	// URLCache is the per-run reachability cache shared with the URL
	// checker. Nil when no URL checking is wired in (offline runs).
	URLCache *urlcheck.Cache
}

// NewContext creates an empty run context. The absent set comes from the
// column mapping established before the first row.
func NewContext(absent []domain.Field) *Context {
	ctx := &Context{
		courseIDs: make(map[string]int),
		intakeIDs: make(map[string]int),
		absent:    make(map[domain.Field]bool),
		URLCache:  urlcheck.NewCache(),
	}
	for _, f := range absent {
		ctx.absent[f] = true
	}
	return ctx
}

// IsAbsent reports whether the field had no source column.
func (c *Context) IsAbsent(f domain.Field) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.absent[f]
}

// recordCourseID registers a course id for row rowIndex. It returns the row
// that first used the value and true when this is a repeat.
func (c *Context) recordCourseID(id string, rowIndex int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if first, ok := c.courseIDs[id]; ok {
		return first, true
	}
	c.courseIDs[id] = rowIndex
	return rowIndex, false
}

// recordIntakeID registers an intake id for row rowIndex and returns whether
// an earlier row already used it.
func (c *Context) recordIntakeID(id string, rowIndex int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if first, ok := c.intakeIDs[id]; ok {
		return first, true
	}
	c.intakeIDs[id] = rowIndex
	return rowIndex, false
}

// addDeferred queues a cross-row error for Finalize.
func (c *Context) addDeferred(err domain.ValidationError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deferred = append(c.deferred, err)
}

// takeDeferred drains the deferred error list.
func (c *Context) takeDeferred() []domain.ValidationError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.deferred
	c.deferred = nil
	return out
}
