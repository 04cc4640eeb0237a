package models_test

import (
	"testing"

	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/stretchr/testify/assert"
)

func TestCombineHealth(t *testing.T) {
	t.Run("Should return the worse of two concrete grades", func(t *testing.T) {
		assert.Equal(t, models.HealthError, models.CombineHealth(models.HealthOK, models.HealthError))
		assert.Equal(t, models.HealthError, models.CombineHealth(models.HealthError, models.HealthOK))
		assert.Equal(t, models.HealthWarning, models.CombineHealth(models.HealthOK, models.HealthWarning))
	})

	t.Run("Should let a concrete grade override Undefined", func(t *testing.T) {
		assert.Equal(t, models.HealthOK, models.CombineHealth(models.HealthUndefined, models.HealthOK))
		assert.Equal(t, models.HealthError, models.CombineHealth(models.HealthError, models.HealthUndefined))
	})

	t.Run("Should return Undefined only when both are Undefined", func(t *testing.T) {
		assert.Equal(t, models.HealthUndefined, models.CombineHealth(models.HealthUndefined, models.HealthUndefined))
	})

	t.Run("Should be commutative", func(t *testing.T) {
		grades := []models.HealthGrade{
			models.HealthUndefined,
			models.HealthOK,
			models.HealthWarning,
			models.HealthError,
		}
		for _, a := range grades {
			for _, b := range grades {
				assert.Equal(t, models.CombineHealth(a, b), models.CombineHealth(b, a))
			}
		}
	})
}

// aggChild is a plain AggChild stub for aggregation tests
type aggChild struct {
	enabled   bool
	health    models.HealthGrade
	status    *int64
	currState *int64
}

func (c aggChild) ChildEnabled() bool              { return c.enabled }
func (c aggChild) ChildHealth() models.HealthGrade { return c.health }
func (c aggChild) ChildStatus() *int64             { return c.status }
func (c aggChild) ChildCurrState() *int64          { return c.currState }

func ptr(v int64) *int64 { return &v }

func TestDeriveChildHealth(t *testing.T) {
	t.Run("Should return the worst health among enabled children", func(t *testing.T) {
		children := []models.AggChild{
			aggChild{enabled: true, health: models.HealthOK},
			aggChild{enabled: true, health: models.HealthWarning},
			aggChild{enabled: true, health: models.HealthOK},
		}
		assert.Equal(t, models.HealthWarning, models.DeriveChildHealth(children))
	})

	t.Run("Should skip disabled children", func(t *testing.T) {
		children := []models.AggChild{
			aggChild{enabled: true, health: models.HealthOK},
			aggChild{enabled: false, health: models.HealthError},
		}
		assert.Equal(t, models.HealthOK, models.DeriveChildHealth(children))
	})

	t.Run("Should return Undefined with no enabled children", func(t *testing.T) {
		assert.Equal(t, models.HealthUndefined, models.DeriveChildHealth(nil))
		assert.Equal(t, models.HealthUndefined, models.DeriveChildHealth([]models.AggChild{
			aggChild{enabled: false, health: models.HealthError},
		}))
	})
}

func TestAggregateStatus(t *testing.T) {
	t.Run("Should return the highest status among enabled children", func(t *testing.T) {
		children := []models.AggChild{
			aggChild{enabled: true, status: ptr(1)},
			aggChild{enabled: true, status: ptr(3)},
			aggChild{enabled: true, status: ptr(2)},
		}
		result := models.AggregateStatus(children)
		assert.NotNil(t, result)
		assert.Equal(t, int64(3), *result)
	})

	t.Run("Should skip children without a status", func(t *testing.T) {
		children := []models.AggChild{
			aggChild{enabled: true, status: nil},
			aggChild{enabled: true, status: ptr(2)},
		}
		result := models.AggregateStatus(children)
		assert.NotNil(t, result)
		assert.Equal(t, int64(2), *result)
	})

	t.Run("Should return nil when no enabled child carries a status", func(t *testing.T) {
		children := []models.AggChild{
			aggChild{enabled: true, status: nil},
			aggChild{enabled: false, status: ptr(5)},
		}
		assert.Nil(t, models.AggregateStatus(children))
	})
}

func TestAggregateCurrState(t *testing.T) {
	t.Run("Should return the most frequent state", func(t *testing.T) {
		children := []models.AggChild{
			aggChild{enabled: true, currState: ptr(2)},
			aggChild{enabled: true, currState: ptr(2)},
			aggChild{enabled: true, currState: ptr(7)},
		}
		result := models.AggregateCurrState(children)
		assert.NotNil(t, result)
		assert.Equal(t, int64(2), *result)
	})

	t.Run("Should resolve ties to the higher state", func(t *testing.T) {
		children := []models.AggChild{
			aggChild{enabled: true, currState: ptr(1)},
			aggChild{enabled: true, currState: ptr(4)},
		}
		result := models.AggregateCurrState(children)
		assert.NotNil(t, result)
		assert.Equal(t, int64(4), *result)
	})

	t.Run("Should return nil when no enabled child carries a state", func(t *testing.T) {
		assert.Nil(t, models.AggregateCurrState(nil))
	})
}
