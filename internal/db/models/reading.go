package models

// Exactly one outcome class exists per (datastream, timestamp) pair: a
// reading lands in one of the four reading tables, a missing sample in one
// of the two marker tables. All six are append-only audit trails written
// with conflict-ignoring bulk inserts, so replays are silently absorbed.

// DsReading is a valid reading, usable for cursor advancement
type DsReading struct {
	DatastreamID uint    `gorm:"primaryKey;autoIncrement:false" json:"datastream_id"`
	Time         int64   `gorm:"primaryKey;autoIncrement:false" json:"time"`
	Value        float64 `gorm:"column:db_value" json:"value"`
}

// TableName overrides the default table name
func (DsReading) TableName() string { return "ds_readings" }

// UnusedDsReading is a reading rejected for a duplicate or out-of-window
// timestamp, stored for audit only.
type UnusedDsReading struct {
	DatastreamID uint    `gorm:"primaryKey;autoIncrement:false" json:"datastream_id"`
	Time         int64   `gorm:"primaryKey;autoIncrement:false" json:"time"`
	Value        float64 `gorm:"column:db_value" json:"value"`
}

// TableName overrides the default table name
func (UnusedDsReading) TableName() string { return "unused_ds_readings" }

// InvalidDsReading is a reading that failed plausibility validation
type InvalidDsReading struct {
	DatastreamID uint    `gorm:"primaryKey;autoIncrement:false" json:"datastream_id"`
	Time         int64   `gorm:"primaryKey;autoIncrement:false" json:"time"`
	Value        float64 `gorm:"column:db_value" json:"value"`
}

// TableName overrides the default table name
func (InvalidDsReading) TableName() string { return "invalid_ds_readings" }

// NonRocDsReading is a reading that failed the max-rate-of-change check
type NonRocDsReading struct {
	DatastreamID uint    `gorm:"primaryKey;autoIncrement:false" json:"datastream_id"`
	Time         int64   `gorm:"primaryKey;autoIncrement:false" json:"time"`
	Value        float64 `gorm:"column:db_value" json:"value"`
}

// TableName overrides the default table name
func (NonRocDsReading) TableName() string { return "non_roc_ds_readings" }

// NoDataMarker records an expected-but-missing sample at a timestamp that
// falls strictly between the stream's cursor and now.
type NoDataMarker struct {
	DatastreamID uint  `gorm:"primaryKey;autoIncrement:false" json:"datastream_id"`
	Time         int64 `gorm:"primaryKey;autoIncrement:false" json:"time"`
}

// TableName overrides the default table name
func (NoDataMarker) TableName() string { return "nd_markers" }

// UnusedNoDataMarker records an expected-but-missing sample whose timestamp
// fell outside the accepted window, too old or in the future.
type UnusedNoDataMarker struct {
	DatastreamID uint  `gorm:"primaryKey;autoIncrement:false" json:"datastream_id"`
	Time         int64 `gorm:"primaryKey;autoIncrement:false" json:"time"`
}

// TableName overrides the default table name
func (UnusedNoDataMarker) TableName() string { return "unused_nd_markers" }
