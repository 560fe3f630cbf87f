package engine

// WriteQuota bounds how many inbox writes one pass applies.
//
// A producer that posts faster than the scene drains would otherwise keep a
// single pass open indefinitely, and nothing it wrote would be observable
// as a finished pass. With a quota, Drain ends the pass once the quota is
// used up and leaves the remaining writes for the next pass.
type WriteQuota struct {
	limit int // Maximum writes per pass; 0 means unlimited
	used  int
}

// NewWriteQuota creates a quota of limit writes per pass. A limit of 0 or
// less is unlimited.
func NewWriteQuota(limit int) *WriteQuota {
	if limit < 0 {
		limit = 0
	}
	return &WriteQuota{limit: limit}
}

// Take consumes one write and reports whether it was within the quota.
func (q *WriteQuota) Take() bool {
	if q.Exhausted() {
		return false
	}
	q.used++
	return true
}

// Exhausted reports whether the current pass has used its quota.
func (q *WriteQuota) Exhausted() bool {
	return q.limit > 0 && q.used >= q.limit
}

// Reset starts a new pass.
func (q *WriteQuota) Reset() {
	q.used = 0
}

// Used returns the writes taken in the current pass.
func (q *WriteQuota) Used() int {
	return q.used
}

// Limit returns the per-pass limit (0 = unlimited).
func (q *WriteQuota) Limit() int {
	return q.limit
}
