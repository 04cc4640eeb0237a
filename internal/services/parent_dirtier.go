package services

import (
	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/fleetwatch/backend/internal/db/repository"
	"gorm.io/gorm"
)

// parentDirtier collects the parent assets a unit of work needs to re-dirty.
// Each parent is locked and loaded once per transaction; marking is
// idempotent per field, and the recompute deadline only ever moves earlier.
type parentDirtier struct {
	assets  repository.AssetRepository
	parents map[uint]*models.Asset
	fields  map[uint]fieldSet
}

func newParentDirtier(assets repository.AssetRepository) *parentDirtier {
	return &parentDirtier{
		assets:  assets,
		parents: make(map[uint]*models.Asset),
		fields:  make(map[uint]fieldSet),
	}
}

// dirty marks field as pending on the parent and pulls its next recompute
// forward to deadline if it is currently scheduled later.
func (d *parentDirtier) dirty(tx *gorm.DB, parentID uint, field string, deadline int64) error {
	parent, ok := d.parents[parentID]
	if !ok {
		loaded, err := d.assets.GetAssetForUpdate(tx, parentID)
		if err != nil {
			return err
		}
		parent = loaded
		d.parents[parentID] = parent
		d.fields[parentID] = fieldSet{}
	}
	changed := d.fields[parentID]

	if !parent.FieldsToUpdate.Contains(field) {
		parent.FieldsToUpdate = append(parent.FieldsToUpdate, field)
		changed.add("fields_to_update")
	}
	if parent.NextUpdTS > deadline {
		parent.NextUpdTS = deadline
		changed.add("next_upd_ts")
	}
	return nil
}

// save persists every touched parent's changed fields within tx
func (d *parentDirtier) save(tx *gorm.DB) error {
	for id, parent := range d.parents {
		if err := repository.SaveFields(tx, parent, d.fields[id].list()); err != nil {
			return err
		}
	}
	return nil
}
