package postgresadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LocationRegistry reads the electoral hierarchy from the locations table.
type LocationRegistry struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewLocationRegistry(db *gorm.DB, logger *slog.Logger) *LocationRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationRegistry{db: db, logger: logger}
}

func (r *LocationRegistry) GetLocation(ctx context.Context, locationID string) (entities.Location, error) {
	var row locationModel
	if err := r.db.WithContext(ctx).
		Where("location_id = ?", strings.TrimSpace(locationID)).
		First(&row).
		Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Location{}, domainerrors.ErrLocationNotFound
		}
		return entities.Location{}, err
	}
	return row.toEntity(), nil
}

func (r *LocationRegistry) AncestorChain(ctx context.Context, locationID string) ([]entities.Location, error) {
	location, err := r.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	chain := []entities.Location{location}
	for location.ParentID != "" {
		if len(chain) > entities.LevelStation.Depth()+1 {
			return nil, fmt.Errorf("location %q: cyclic hierarchy: %w", locationID, domainerrors.ErrRepositoryInvariantBroke)
		}
		location, err = r.GetLocation(ctx, location.ParentID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, location)
	}
	return chain, nil
}

// DescendantStations walks down one level per query until stations are reached.
func (r *LocationRegistry) DescendantStations(ctx context.Context, locationID string) ([]entities.Location, error) {
	root, err := r.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if root.IsStation() {
		return []entities.Location{root}, nil
	}

	var stations []entities.Location
	frontier := []string{root.LocationID}
	for depth := root.Level.Depth(); depth < entities.LevelStation.Depth() && len(frontier) > 0; depth++ {
		var rows []locationModel
		if err := r.db.WithContext(ctx).
			Where("parent_id IN ?", frontier).
			Order("location_id ASC").
			Find(&rows).
			Error; err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, row := range rows {
			location := row.toEntity()
			if location.IsStation() {
				stations = append(stations, location)
				continue
			}
			frontier = append(frontier, location.LocationID)
		}
	}
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].LocationID < stations[j].LocationID
	})
	return stations, nil
}

// ImportLocations upserts locations parents-first so foreign keys hold.
func (r *LocationRegistry) ImportLocations(ctx context.Context, locations []entities.Location) (int, error) {
	rows := make([]locationModel, 0, len(locations))
	for _, location := range locations {
		if strings.TrimSpace(location.LocationID) == "" || !location.Level.IsValid() {
			return 0, fmt.Errorf("location %q: %w", location.LocationID, domainerrors.ErrInvalidInput)
		}
		rows = append(rows, locationModelFromEntity(location))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return entities.LocationLevel(rows[i].Level).Depth() < entities.LocationLevel(rows[j].Level).Depth()
	})

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "location_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"level", "parent_id", "name", "registered_voters"}),
		}).CreateInBatches(&rows, 500).Error
	})
	if err != nil {
		r.logger.Error("location import failed",
			"event", "tally_location_import_failed",
			"module", "election-results/tally-engine",
			"layer", "adapter",
			"adapter", "postgres",
			"error", err.Error(),
		)
		return 0, err
	}
	return len(rows), nil
}
