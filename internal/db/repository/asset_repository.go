package repository

import (
	"github.com/fleetwatch/backend/internal/db/models"
	"gorm.io/gorm"
)

// AssetRepository defines operations for managing assets and applications
type AssetRepository interface {
	Repository
	CreateAsset(asset *models.Asset) error
	CreateApplication(app *models.Application) error
	GetAssetByID(id uint) (*models.Asset, error)
	GetAssetForUpdate(tx *gorm.DB, id uint) (*models.Asset, error)
	// ListDueAssetsForUpdate selects up to limit assets with
	// next_upd_ts <= now, ordered ascending by due time, locked within tx.
	ListDueAssetsForUpdate(tx *gorm.DB, now int64, limit int) ([]*models.Asset, error)
	// ListChildren loads an asset's direct children of all three kinds.
	ListChildren(tx *gorm.DB, assetID uint) ([]models.AggChild, error)
	GetApplicationByID(id uint) (*models.Application, error)
	// ListDueApplicationsForUpdate selects up to limit enabled applications
	// due for a staleness re-check, locked within tx.
	ListDueApplicationsForUpdate(tx *gorm.DB, now int64, limit int) ([]*models.Application, error)
}

// assetRepository implements AssetRepository
type assetRepository struct {
	BaseRepository
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// CreateAsset inserts a new asset
func (r *assetRepository) CreateAsset(asset *models.Asset) error {
	err := r.GetDB().Create(asset).Error
	return r.handleError(err)
}

// CreateApplication inserts a new application
func (r *assetRepository) CreateApplication(app *models.Application) error {
	err := r.GetDB().Create(app).Error
	return r.handleError(err)
}

// GetAssetByID retrieves an asset by primary key
func (r *assetRepository) GetAssetByID(id uint) (*models.Asset, error) {
	var asset models.Asset
	if err := r.GetDB().First(&asset, id).Error; err != nil {
		return nil, r.handleError(err)
	}
	return &asset, nil
}

// GetAssetForUpdate retrieves and locks an asset by primary key
func (r *assetRepository) GetAssetForUpdate(tx *gorm.DB, id uint) (*models.Asset, error) {
	var asset models.Asset
	if err := ForUpdate(tx).First(&asset, id).Error; err != nil {
		return nil, r.handleError(err)
	}
	return &asset, nil
}

// ListDueAssetsForUpdate selects and locks the assets due for recompute
func (r *assetRepository) ListDueAssetsForUpdate(tx *gorm.DB, now int64, limit int) ([]*models.Asset, error) {
	var assets []*models.Asset
	err := ForUpdate(tx).
		Where("next_upd_ts <= ?", now).
		Order("next_upd_ts asc").
		Limit(limit).
		Find(&assets).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return assets, nil
}

// ListChildren loads the direct children of an asset: applications, devices
// and sub-assets.
func (r *assetRepository) ListChildren(tx *gorm.DB, assetID uint) ([]models.AggChild, error) {
	var apps []*models.Application
	if err := tx.Where("parent_id = ?", assetID).Find(&apps).Error; err != nil {
		return nil, r.handleError(err)
	}

	var devices []*models.Device
	if err := tx.Where("parent_id = ?", assetID).Find(&devices).Error; err != nil {
		return nil, r.handleError(err)
	}

	var assets []*models.Asset
	if err := tx.Where("parent_id = ?", assetID).Find(&assets).Error; err != nil {
		return nil, r.handleError(err)
	}

	children := make([]models.AggChild, 0, len(apps)+len(devices)+len(assets))
	for _, app := range apps {
		children = append(children, app)
	}
	for _, dev := range devices {
		children = append(children, dev)
	}
	for _, asset := range assets {
		children = append(children, asset)
	}
	return children, nil
}

// GetApplicationByID retrieves an application by primary key
func (r *assetRepository) GetApplicationByID(id uint) (*models.Application, error) {
	var app models.Application
	if err := r.GetDB().First(&app, id).Error; err != nil {
		return nil, r.handleError(err)
	}
	return &app, nil
}

// ListDueApplicationsForUpdate selects and locks the applications due for a
// staleness re-check.
func (r *assetRepository) ListDueApplicationsForUpdate(tx *gorm.DB, now int64, limit int) ([]*models.Application, error) {
	var apps []*models.Application
	err := ForUpdate(tx).
		Where("stale_next_eval_ts <= ? AND is_enabled = ?", now, true).
		Order("stale_next_eval_ts asc").
		Limit(limit).
		Find(&apps).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return apps, nil
}
