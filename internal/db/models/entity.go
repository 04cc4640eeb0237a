package models

// SleepTS is the "far future" sentinel for next_upd_ts: the entity is
// sleeping and owes no recompute work until a child change re-dirties it.
// 9999-12-31T23:59:59Z in epoch milliseconds.
const SleepTS int64 = 253402300799000

// Publishable is implemented by entities whose saves are announced on the
// outbound transport. PublishedFields returns the published attribute set
// keyed by field name; a save is announced only when at least one changed
// field belongs to that set.
type Publishable interface {
	EntityType() string
	GetID() uint
	GetName() string
	GetParentID() *uint
	PublishedFields() map[string]interface{}
}

// Recomputable is implemented by container entities whose attributes the
// batch scheduler re-derives from their direct children. The scheduler
// depends only on this interface, never on concrete entity kinds.
type Recomputable interface {
	PendingFields() StringList
	ClearPendingFields()
	NextRecomputeAt() int64
	SetNextRecomputeAt(ts int64)
	// RecomputeField re-derives the named attribute from children and
	// applies it to the entity, reporting whether the value changed.
	RecomputeField(field string, children []AggChild) bool
}
