package models

// Datastream is one sensor feed of a device. Its health combines message
// health (derived from the alarm maps) with no-data health (derived from
// silence detection, meaningful only for periodic streams).
type Datastream struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	Name     string `gorm:"not null;uniqueIndex:idx_ds_name_parent" json:"name"`
	ParentID uint   `gorm:"not null;uniqueIndex:idx_ds_name_parent" json:"parent_id"`

	DataTypeID uint     `json:"data_type_id"`
	DataType   DataType `gorm:"foreignKey:DataTypeID" json:"data_type,omitempty"`

	IsTotalizer bool `gorm:"default:false" json:"is_totalizer"`
	// IsRBE marks a report-by-exception stream: absence of data is normal
	// until an active condition says otherwise.
	IsRBE     bool `gorm:"column:is_rbe;default:false" json:"is_rbe"`
	IsEnabled bool `gorm:"default:true" json:"is_enabled"`

	// TUpdate is the heartbeat interval in ms; nil means the stream is not
	// periodic and is exempt from staleness checks.
	TUpdate *int64 `gorm:"column:t_update" json:"t_update"`
	TChange *int64 `gorm:"column:t_change" json:"t_change"`

	Alarms    Alarms      `gorm:"type:jsonb" json:"alarms"`
	Health    HealthGrade `gorm:"default:0" json:"health"`
	MsgHealth HealthGrade `gorm:"default:0" json:"msg_health"`
	// NdHealth stays Undefined for non-periodic streams.
	NdHealth HealthGrade `gorm:"column:nd_health;default:0" json:"nd_health"`

	// TNdHealthError is the silence timeout: no valid reading for longer
	// than this grades NdHealth as ERROR.
	TNdHealthError   int64 `gorm:"default:300000" json:"t_nd_health_error"`
	HealthNextEvalTS int64 `gorm:"index;default:0" json:"health_next_eval_ts"`

	MaxRateOfChange   float64 `gorm:"default:1.0" json:"max_rate_of_change"`
	MaxPlausibleValue float64 `gorm:"default:1000000.0" json:"max_plausible_value"`
	MinPlausibleValue float64 `gorm:"default:-1000000.0" json:"min_plausible_value"`

	// TsToStartWith is the cursor: readings and markers at or below it are
	// already processed and will not be accepted again.
	TsToStartWith int64  `gorm:"default:0" json:"ts_to_start_with"`
	LastReadingTS *int64 `json:"last_reading_ts"`

	CreatedTS int64 `json:"created_ts"`
}

// TableName overrides the default table name
func (Datastream) TableName() string {
	return "datastreams"
}

// EvaluateHealth combines message health and no-data health
func (ds *Datastream) EvaluateHealth() HealthGrade {
	return CombineHealth(ds.MsgHealth, ds.NdHealth)
}

// NeedsNoDataMarkers reports whether silence on this stream is worth
// recording. Only report-by-exception streams need markers, and not for
// averaged continuous data where gaps are implicit in the resampling.
func (ds *Datastream) NeedsNoDataMarkers() bool {
	if !ds.IsRBE {
		return false
	}
	if ds.DataType.VarType == VarContinuous && ds.DataType.AggType == AggAvg {
		return false
	}
	return true
}

// IsValueInteger reports whether readings should round to whole values
func (ds *Datastream) IsValueInteger() bool {
	return ds.DataType.VarType != VarContinuous
}

// EntityType identifies the datastream on the outbound transport
func (ds *Datastream) EntityType() string { return "datastream" }

// GetID returns the primary key
func (ds *Datastream) GetID() uint { return ds.ID }

// GetName returns the stream name, unique within its device
func (ds *Datastream) GetName() string { return ds.Name }

// GetParentID returns the owning device id
func (ds *Datastream) GetParentID() *uint { return &ds.ParentID }

// PublishedFields returns the attribute set announced on save
func (ds *Datastream) PublishedFields() map[string]interface{} {
	return map[string]interface{}{
		"health":          ds.Health,
		"last_reading_ts": ds.LastReadingTS,
		"is_enabled":      ds.IsEnabled,
	}
}

// ChildEnabled implements AggChild
func (ds *Datastream) ChildEnabled() bool { return ds.IsEnabled }

// ChildHealth implements AggChild
func (ds *Datastream) ChildHealth() HealthGrade { return ds.Health }

// ChildStatus implements AggChild; datastreams carry no status
func (ds *Datastream) ChildStatus() *int64 { return nil }

// ChildCurrState implements AggChild; datastreams carry no current state
func (ds *Datastream) ChildCurrState() *int64 { return nil }
