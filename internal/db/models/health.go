package models

// HealthGrade is a graded health value ordered by severity. Undefined means
// "no information" rather than good or bad: it never overrides a concrete
// grade when aggregating, but any concrete grade overrides it.
type HealthGrade int

const (
	HealthUndefined HealthGrade = iota
	HealthOK
	HealthWarning
	HealthError
)

// String returns a human-readable name for the grade
func (h HealthGrade) String() string {
	switch h {
	case HealthOK:
		return "OK"
	case HealthWarning:
		return "WARNING"
	case HealthError:
		return "ERROR"
	default:
		return "UNDEFINED"
	}
}

// CombineHealth merges two independent health signals into one grade. The
// worse of the two wins unless one is Undefined, in which case the other
// wins; both Undefined yields Undefined.
func CombineHealth(a, b HealthGrade) HealthGrade {
	if a == HealthUndefined {
		return b
	}
	if b == HealthUndefined {
		return a
	}
	if a > b {
		return a
	}
	return b
}

// Recomputed attribute names, as stored in an entity's pending-field list
// and used as column names on save.
const (
	FieldStatus    = "status"
	FieldCurrState = "curr_state"
	FieldHealth    = "health"
)

// AggChild is the view of a child entity the per-field aggregation rules
// work on. Children that do not carry an attribute report nil for it and
// are skipped by the corresponding rule.
type AggChild interface {
	ChildEnabled() bool
	ChildHealth() HealthGrade
	ChildStatus() *int64
	ChildCurrState() *int64
}

// DeriveChildHealth returns the worst health among enabled children.
// No enabled children means no information, not OK.
func DeriveChildHealth(children []AggChild) HealthGrade {
	health := HealthUndefined
	for _, c := range children {
		if !c.ChildEnabled() {
			continue
		}
		if h := c.ChildHealth(); h > health {
			health = h
		}
	}
	return health
}

// AggregateStatus derives a container's status from its children: the
// highest status among enabled children that carry one, nil if none do.
func AggregateStatus(children []AggChild) *int64 {
	var status *int64
	for _, c := range children {
		if !c.ChildEnabled() {
			continue
		}
		s := c.ChildStatus()
		if s == nil {
			continue
		}
		if status == nil || *s > *status {
			v := *s
			status = &v
		}
	}
	return status
}

// AggregateCurrState derives a container's current state from its children:
// the most frequent state among enabled children that carry one, nil if
// none do. Ties resolve to the higher state value so the result is stable
// across child ordering.
func AggregateCurrState(children []AggChild) *int64 {
	counts := make(map[int64]int)
	for _, c := range children {
		if !c.ChildEnabled() {
			continue
		}
		if s := c.ChildCurrState(); s != nil {
			counts[*s]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	var best int64
	bestCount := -1
	for state, n := range counts {
		if n > bestCount || (n == bestCount && state > best) {
			best = state
			bestCount = n
		}
	}
	return &best
}
