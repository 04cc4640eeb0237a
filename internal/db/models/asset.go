package models

// Asset is a container node of the hierarchy. Its status, current state
// and health are each re-derived from the corresponding attribute of its
// direct children (devices, applications, sub-assets) by the batch
// recompute scheduler, driven by the pending-field list.
type Asset struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	Name      string `gorm:"not null" json:"name"`
	ParentID  *uint  `gorm:"index" json:"parent_id"`
	IsEnabled bool   `gorm:"default:true" json:"is_enabled"`

	Status    *int64      `json:"status"`
	CurrState *int64      `gorm:"column:curr_state" json:"curr_state"`
	Health    HealthGrade `gorm:"default:0" json:"health"`

	LastStatusUpdateTS    *int64 `json:"last_status_update_ts"`
	LastCurrStateUpdateTS *int64 `json:"last_curr_state_update_ts"`
	IsStatusStale         bool   `gorm:"default:false" json:"is_status_stale"`
	IsCurrStateStale      bool   `gorm:"default:false" json:"is_curr_state_stale"`
	TStatusStale          int64  `gorm:"default:3600000" json:"t_status_stale"`
	TCurrStateStale       int64  `gorm:"default:3600000" json:"t_curr_state_stale"`

	// FieldsToUpdate is the append-only set of attribute names owed a
	// recompute; consumed and cleared by the scheduler pass.
	FieldsToUpdate StringList `gorm:"type:jsonb" json:"fields_to_update"`
	NextUpdTS      int64      `gorm:"index;default:253402300799000" json:"next_upd_ts"`
	CreatedTS      int64      `json:"created_ts"`
}

// PendingFields implements Recomputable
func (a *Asset) PendingFields() StringList { return a.FieldsToUpdate }

// ClearPendingFields implements Recomputable
func (a *Asset) ClearPendingFields() { a.FieldsToUpdate = StringList{} }

// NextRecomputeAt implements Recomputable
func (a *Asset) NextRecomputeAt() int64 { return a.NextUpdTS }

// SetNextRecomputeAt implements Recomputable
func (a *Asset) SetNextRecomputeAt(ts int64) { a.NextUpdTS = ts }

// RecomputeField re-derives the named attribute from the children using
// that field's aggregation rule and applies it, reporting a change.
// Unknown fields are ignored.
func (a *Asset) RecomputeField(field string, children []AggChild) bool {
	switch field {
	case FieldStatus:
		next := AggregateStatus(children)
		if !int64PtrEqual(a.Status, next) {
			a.Status = next
			return true
		}
	case FieldCurrState:
		next := AggregateCurrState(children)
		if !int64PtrEqual(a.CurrState, next) {
			a.CurrState = next
			return true
		}
	case FieldHealth:
		next := DeriveChildHealth(children)
		if a.Health != next {
			a.Health = next
			return true
		}
	}
	return false
}

// EntityType identifies the asset on the outbound transport
func (a *Asset) EntityType() string { return "asset" }

// GetID returns the primary key
func (a *Asset) GetID() uint { return a.ID }

// GetName returns the display name
func (a *Asset) GetName() string { return a.Name }

// GetParentID returns the owning asset id, nil at the root
func (a *Asset) GetParentID() *uint { return a.ParentID }

// PublishedFields returns the attribute set announced on save
func (a *Asset) PublishedFields() map[string]interface{} {
	return map[string]interface{}{
		"status":              a.Status,
		"curr_state":          a.CurrState,
		"health":              a.Health,
		"is_status_stale":     a.IsStatusStale,
		"is_curr_state_stale": a.IsCurrStateStale,
	}
}

// ChildEnabled implements AggChild
func (a *Asset) ChildEnabled() bool { return a.IsEnabled }

// ChildHealth implements AggChild
func (a *Asset) ChildHealth() HealthGrade { return a.Health }

// ChildStatus implements AggChild
func (a *Asset) ChildStatus() *int64 { return a.Status }

// ChildCurrState implements AggChild
func (a *Asset) ChildCurrState() *int64 { return a.CurrState }

// Application is a derived computation attached to an asset. The pluggable
// computation itself runs elsewhere; here the application participates in
// the containment hierarchy with its status, current state and health, and
// carries its own staleness thresholds.
type Application struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	Name      string `gorm:"not null" json:"name"`
	ParentID  *uint  `gorm:"index" json:"parent_id"`
	IsEnabled bool   `gorm:"default:true" json:"is_enabled"`

	HasStatus    bool `gorm:"default:true" json:"has_status"`
	HasCurrState bool `gorm:"default:true" json:"has_curr_state"`

	Status    *int64      `json:"status"`
	CurrState *int64      `gorm:"column:curr_state" json:"curr_state"`
	Health    HealthGrade `gorm:"default:0" json:"health"`
	Alarms    Alarms      `gorm:"type:jsonb" json:"alarms"`

	// CursorTS is the high-water mark of input readings the application's
	// computation has consumed.
	CursorTS int64 `gorm:"default:0" json:"cursor_ts"`

	LastStatusUpdateTS    *int64 `json:"last_status_update_ts"`
	LastCurrStateUpdateTS *int64 `json:"last_curr_state_update_ts"`
	IsStatusStale         bool   `gorm:"default:false" json:"is_status_stale"`
	IsCurrStateStale      bool   `gorm:"default:false" json:"is_curr_state_stale"`
	TStatusStale          int64  `gorm:"default:3600000" json:"t_status_stale"`
	TCurrStateStale       int64  `gorm:"default:3600000" json:"t_curr_state_stale"`
	StaleNextEvalTS       int64  `gorm:"index;default:0" json:"stale_next_eval_ts"`

	CreatedTS int64 `json:"created_ts"`
}

// EntityType identifies the application on the outbound transport
func (app *Application) EntityType() string { return "application" }

// GetID returns the primary key
func (app *Application) GetID() uint { return app.ID }

// GetName returns the display name
func (app *Application) GetName() string { return app.Name }

// GetParentID returns the owning asset id
func (app *Application) GetParentID() *uint { return app.ParentID }

// PublishedFields returns the attribute set announced on save
func (app *Application) PublishedFields() map[string]interface{} {
	return map[string]interface{}{
		"status":              app.Status,
		"curr_state":          app.CurrState,
		"health":              app.Health,
		"is_status_stale":     app.IsStatusStale,
		"is_curr_state_stale": app.IsCurrStateStale,
	}
}

// ChildEnabled implements AggChild
func (app *Application) ChildEnabled() bool { return app.IsEnabled }

// ChildHealth implements AggChild
func (app *Application) ChildHealth() HealthGrade { return app.Health }

// ChildStatus implements AggChild
func (app *Application) ChildStatus() *int64 {
	if !app.HasStatus {
		return nil
	}
	return app.Status
}

// ChildCurrState implements AggChild
func (app *Application) ChildCurrState() *int64 {
	if !app.HasCurrState {
		return nil
	}
	return app.CurrState
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
