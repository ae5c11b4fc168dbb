package locationcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
)

var header = []string{"id", "level", "parent_id", "name", "registered_voters"}

// Read parses a location registry export. The first row must be the header
// id,level,parent_id,name,registered_voters; registered_voters may be blank
// above station level.
func Read(r io.Reader) ([]entities.Location, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)
	reader.TrimLeadingSpace = true

	first, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty location file: %w", domainerrors.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range header {
		if !strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(first[i], "\ufeff")), name) {
			return nil, fmt.Errorf("column %d is %q, want %q: %w", i+1, first[i], name, domainerrors.ErrInvalidInput)
		}
	}

	var locations []entities.Location
	seen := map[string]struct{}{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		location, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, dup := seen[location.LocationID]; dup {
			return nil, fmt.Errorf("line %d: duplicate location %q: %w", line, location.LocationID, domainerrors.ErrInvalidInput)
		}
		seen[location.LocationID] = struct{}{}
		locations = append(locations, location)
	}
	return locations, nil
}

func parseRecord(record []string) (entities.Location, error) {
	id := strings.TrimSpace(record[0])
	if id == "" {
		return entities.Location{}, fmt.Errorf("missing id: %w", domainerrors.ErrInvalidInput)
	}
	level, ok := entities.ParseLocationLevel(record[1])
	if !ok {
		return entities.Location{}, fmt.Errorf("location %q: unknown level %q: %w", id, record[1], domainerrors.ErrInvalidInput)
	}
	var registered int64
	if raw := strings.TrimSpace(record[4]); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			return entities.Location{}, fmt.Errorf("location %q: registered_voters %q: %w", id, raw, domainerrors.ErrInvalidInput)
		}
		registered = value
	}
	return entities.Location{
		LocationID:       id,
		Level:            level,
		ParentID:         strings.TrimSpace(record[2]),
		Name:             strings.TrimSpace(record[3]),
		RegisteredVoters: registered,
	}, nil
}
