package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// ProviderType identifies which upstream network a sensor reports through.
type ProviderType string

const (
	ProviderPurpleAir ProviderType = "purpleair"
	ProviderAcuRite   ProviderType = "acurite"
)

// Valid reports whether t is a known provider type.
func (t ProviderType) Valid() bool {
	return t == ProviderPurpleAir || t == ProviderAcuRite
}

// Entry is one sensor in the static catalog shipped with the service.
// DeviceID is the provider-side device handle and is only set for AcuRite
// sensors; PurpleAir sensors are addressed by their sensor_index directly.
type Entry struct {
	SensorIndex int          `json:"sensor_index"`
	Name        string       `json:"name"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	Type        ProviderType `json:"type"`
	DeviceID    *string      `json:"device_id,omitempty"`
}

// Catalog is the read-only set of known sensors, loaded once at startup.
type Catalog struct {
	entries []Entry
	byIndex map[int]Entry
}

// Load reads and validates the catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	byIndex := make(map[int]Entry, len(entries))
	for _, e := range entries {
		if !e.Type.Valid() {
			return nil, fmt.Errorf("sensor %d: unknown type %q", e.SensorIndex, e.Type)
		}
		if _, dup := byIndex[e.SensorIndex]; dup {
			return nil, fmt.Errorf("duplicate sensor_index %d", e.SensorIndex)
		}
		byIndex[e.SensorIndex] = e
	}

	return &Catalog{entries: entries, byIndex: byIndex}, nil
}

// All returns every catalog entry.
func (c *Catalog) All() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// ByIndex looks up a sensor by its stable external index. A non-empty type
// additionally requires the entry to belong to that provider.
func (c *Catalog) ByIndex(sensorIndex int, t ProviderType) (Entry, bool) {
	entry, ok := c.byIndex[sensorIndex]
	if !ok {
		return Entry{}, false
	}
	if t != "" && entry.Type != t {
		return Entry{}, false
	}
	return entry, true
}

// ByType returns all entries for one provider.
func (c *Catalog) ByType(t ProviderType) []Entry {
	out := make([]Entry, 0)
	for _, e := range c.entries {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
