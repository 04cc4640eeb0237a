package models

// VariableType describes the shape of the measured variable
type VariableType int

const (
	VarContinuous VariableType = iota
	VarDiscrete
	VarBoolean
)

// DataAggrType describes how readings of a datastream aggregate over time
type DataAggrType int

const (
	AggAvg DataAggrType = iota
	AggSum
	AggMin
	AggMax
)

// DataType describes the kind of data a datastream carries
type DataType struct {
	ID       uint         `gorm:"primarykey" json:"id"`
	Name     string       `gorm:"not null;default:'Dimensionless'" json:"name"`
	MeasUnit string       `json:"meas_unit"`
	AggType  DataAggrType `gorm:"default:0" json:"agg_type"`
	VarType  VariableType `gorm:"default:0" json:"var_type"`
}

// TableName overrides the default table name
func (DataType) TableName() string {
	return "datatypes"
}
