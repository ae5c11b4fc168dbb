package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
)

// LocationRegistry is an immutable in-memory hierarchy.
type LocationRegistry struct {
	locations map[string]entities.Location
	children  map[string][]string
}

// NewLocationRegistry validates that every parent exists and that levels
// step down one tier at a time.
func NewLocationRegistry(locations []entities.Location) (*LocationRegistry, error) {
	registry := &LocationRegistry{
		locations: make(map[string]entities.Location, len(locations)),
		children:  make(map[string][]string),
	}
	for _, location := range locations {
		location.LocationID = strings.TrimSpace(location.LocationID)
		location.ParentID = strings.TrimSpace(location.ParentID)
		if location.LocationID == "" || !location.Level.IsValid() {
			return nil, fmt.Errorf("location %q: %w", location.LocationID, domainerrors.ErrInvalidInput)
		}
		if _, exists := registry.locations[location.LocationID]; exists {
			return nil, fmt.Errorf("location %q declared twice: %w", location.LocationID, domainerrors.ErrInvalidInput)
		}
		registry.locations[location.LocationID] = location
	}
	for _, location := range registry.locations {
		expectedParent, hasParent := location.Level.ParentLevel()
		if !hasParent {
			if location.ParentID != "" {
				return nil, fmt.Errorf("national location %q has a parent: %w", location.LocationID, domainerrors.ErrInvalidInput)
			}
			continue
		}
		parent, ok := registry.locations[location.ParentID]
		if !ok || parent.Level != expectedParent {
			return nil, fmt.Errorf("location %q has invalid parent %q: %w", location.LocationID, location.ParentID, domainerrors.ErrInvalidInput)
		}
		registry.children[parent.LocationID] = append(registry.children[parent.LocationID], location.LocationID)
	}
	for parentID := range registry.children {
		sort.Strings(registry.children[parentID])
	}
	return registry, nil
}

func (r *LocationRegistry) GetLocation(_ context.Context, locationID string) (entities.Location, error) {
	location, ok := r.locations[strings.TrimSpace(locationID)]
	if !ok {
		return entities.Location{}, domainerrors.ErrLocationNotFound
	}
	return location, nil
}

func (r *LocationRegistry) AncestorChain(ctx context.Context, locationID string) ([]entities.Location, error) {
	location, err := r.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	chain := []entities.Location{location}
	for location.ParentID != "" {
		location = r.locations[location.ParentID]
		chain = append(chain, location)
	}
	return chain, nil
}

func (r *LocationRegistry) DescendantStations(ctx context.Context, locationID string) ([]entities.Location, error) {
	root, err := r.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	var stations []entities.Location
	queue := []entities.Location{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.IsStation() {
			stations = append(stations, current)
			continue
		}
		for _, childID := range r.children[current.LocationID] {
			queue = append(queue, r.locations[childID])
		}
	}
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].LocationID < stations[j].LocationID
	})
	return stations, nil
}
