package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// AlarmActivity is one condition entry of an alarm map. Since is the
// timestamp of the last activity transition, not of the last report.
type AlarmActivity struct {
	Active bool  `json:"active"`
	Since  int64 `json:"since"`
}

// AlarmMap maps a condition code to its current activity record. It is
// built incrementally: at each processed timestamp the set of codes
// reported present is compared against the previous map, activating codes
// that appeared and resolving codes that no longer appear.
type AlarmMap map[string]AlarmActivity

// Clone returns an independent copy of the map
func (m AlarmMap) Clone() AlarmMap {
	next := make(AlarmMap, len(m))
	for code, rec := range m {
		next[code] = rec
	}
	return next
}

// Equal reports structural equality; callers persist and publish the alarms
// field only when the updated map actually differs.
func (m AlarmMap) Equal(other AlarmMap) bool {
	if len(m) != len(other) {
		return false
	}
	for code, rec := range m {
		if o, ok := other[code]; !ok || o != rec {
			return false
		}
	}
	return true
}

// AtLeastOneActive reports whether any condition in the map is currently active
func AtLeastOneActive(m AlarmMap) bool {
	for _, rec := range m {
		if rec.Active {
			return true
		}
	}
	return false
}

// AlarmKind selects which half of an entity's alarms UpdatePart works on
type AlarmKind string

const (
	AlarmErrors   AlarmKind = "errors"
	AlarmWarnings AlarmKind = "warnings"
)

// UpdatePart applies the conditions reported at ts to a copy of prev and
// returns it together with the silence-expected flag. A nil reported map
// still resolves previously active conditions.
//
// silenceExpected is true when the entity had no valid value at ts and an
// active condition in the updated map explains the gap, i.e. the caller
// should record a no-data marker instead of treating the silence as an
// unexplained outage. Callers consult it for the errors kind; for warnings
// it is honored only under the warning-explains-silence policy.
func UpdatePart(prev AlarmMap, reported map[string]string, ts int64, kind AlarmKind, hasValue bool) (AlarmMap, bool) {
	next := prev.Clone()

	for code := range reported {
		if rec, ok := next[code]; !ok || !rec.Active {
			next[code] = AlarmActivity{Active: true, Since: ts}
		}
	}
	for code, rec := range next {
		if !rec.Active {
			continue
		}
		if _, ok := reported[code]; !ok {
			next[code] = AlarmActivity{Active: false, Since: ts}
		}
	}

	silenceExpected := !hasValue && AtLeastOneActive(next)
	return next, silenceExpected
}

// Alarms groups the error and warning maps persisted on a monitored entity
// as one JSON column.
type Alarms struct {
	Errors   AlarmMap `json:"errors"`
	Warnings AlarmMap `json:"warnings"`
}

// NewAlarms returns an empty alarms value with both maps allocated
func NewAlarms() Alarms {
	return Alarms{Errors: AlarmMap{}, Warnings: AlarmMap{}}
}

// MessageHealth derives the message-based health grade: ERROR if any error
// condition is active, else WARNING if any warning condition is active,
// else UNDEFINED. A clean map carries no information, it is not OK.
func (a Alarms) MessageHealth() HealthGrade {
	if AtLeastOneActive(a.Errors) {
		return HealthError
	}
	if AtLeastOneActive(a.Warnings) {
		return HealthWarning
	}
	return HealthUndefined
}

// Value returns the JSON encoding to be stored in the database
func (a Alarms) Value() (driver.Value, error) {
	bytes, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan decodes an alarms value from the database
func (a *Alarms) Scan(value interface{}) error {
	if value == nil {
		*a = NewAlarms()
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source for Alarms")
	}

	if err := json.Unmarshal(bytes, a); err != nil {
		return err
	}
	if a.Errors == nil {
		a.Errors = AlarmMap{}
	}
	if a.Warnings == nil {
		a.Warnings = AlarmMap{}
	}
	return nil
}

// StringList is a JSON-backed list of strings, used for an entity's
// pending recompute fields.
type StringList []string

// Contains reports whether s is present in the list
func (l StringList) Contains(s string) bool {
	for _, item := range l {
		if item == s {
			return true
		}
	}
	return false
}

// Value returns the JSON encoding to be stored in the database
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	bytes, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan decodes a string list from the database
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source for StringList")
	}

	return json.Unmarshal(bytes, l)
}
