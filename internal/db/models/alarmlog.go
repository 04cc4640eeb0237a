package models

// Alarm log severities
const (
	LogInfo    = "INFO"
	LogWarning = "WARNING"
	LogError   = "ERROR"
)

// AlarmLogEntry is one row of the persistent operations log: condition
// notes carried in payloads, ingestion rejections and transport events all
// land here.
type AlarmLogEntry struct {
	ID         uint   `gorm:"primarykey" json:"id"`
	Severity   string `gorm:"not null;index" json:"severity"`
	Message    string `gorm:"not null" json:"message"`
	Time       int64  `gorm:"not null;index" json:"time"`
	EntityType string `json:"entity_type"`
	EntityID   *uint  `json:"entity_id"`
	// Instance names the non-entity source of a message, e.g. a transport
	// worker.
	Instance string `json:"instance"`
}

// TableName overrides the default table name
func (AlarmLogEntry) TableName() string { return "alarm_log" }
