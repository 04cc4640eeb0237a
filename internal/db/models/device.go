package models

// Device is a physical unit of the fleet, addressed by its transport UID.
// It owns a set of datastreams; its health combines device-level message
// health with the worst health among its enabled datastreams.
type Device struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	DevUI     string `gorm:"uniqueIndex;not null" json:"dev_ui"`
	Name      string `gorm:"not null" json:"name"`
	ParentID  *uint  `gorm:"index" json:"parent_id"`
	IsEnabled bool   `gorm:"default:true" json:"is_enabled"`

	Alarms     Alarms      `gorm:"type:jsonb" json:"alarms"`
	Health     HealthGrade `gorm:"default:0" json:"health"`
	MsgHealth  HealthGrade `gorm:"default:0" json:"msg_health"`
	ChldHealth HealthGrade `gorm:"default:0" json:"chld_health"`

	NextUpdTS int64 `gorm:"index;default:253402300799000" json:"next_upd_ts"`
	CreatedTS int64 `json:"created_ts"`

	// Relationships
	Datastreams []Datastream `gorm:"foreignKey:ParentID" json:"datastreams,omitempty"`
}

// EvaluateHealth combines the device's own message health with the health
// derived from its children.
func (d *Device) EvaluateHealth() HealthGrade {
	return CombineHealth(d.MsgHealth, d.ChldHealth)
}

// EntityType identifies the device on the outbound transport
func (d *Device) EntityType() string { return "device" }

// GetID returns the primary key
func (d *Device) GetID() uint { return d.ID }

// GetName returns the display name
func (d *Device) GetName() string { return d.Name }

// GetParentID returns the owning asset id, nil at the root
func (d *Device) GetParentID() *uint { return d.ParentID }

// PublishedFields returns the attribute set announced on save
func (d *Device) PublishedFields() map[string]interface{} {
	return map[string]interface{}{
		"health":     d.Health,
		"is_enabled": d.IsEnabled,
	}
}

// ChildEnabled implements AggChild
func (d *Device) ChildEnabled() bool { return d.IsEnabled }

// ChildHealth implements AggChild
func (d *Device) ChildHealth() HealthGrade { return d.Health }

// ChildStatus implements AggChild; devices carry no status
func (d *Device) ChildStatus() *int64 { return nil }

// ChildCurrState implements AggChild; devices carry no current state
func (d *Device) ChildCurrState() *int64 { return nil }
