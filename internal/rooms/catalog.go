// Package rooms holds the static room catalog and the registry that tracks
// which connections are currently joined to each room.
package rooms

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedCatalog is returned when a catalog definition cannot be parsed.
var ErrMalformedCatalog = errors.New("malformed room catalog")

// Room is one entry of the static catalog.
type Room struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Catalog is the ordered, fixed set of rooms clients may join.
type Catalog []Room

// DefaultCatalog returns the rooms served when no catalog is configured.
func DefaultCatalog() Catalog {
	return Catalog{
		{Key: "geral", Label: "Sala Geral"},
		{Key: "tecnologia", Label: "Sala Tecnologia"},
	}
}

// ParseCatalog reads a comma separated list of key=label pairs. A bare key
// uses itself as label.
func ParseCatalog(value string) (Catalog, error) {
	var catalog Catalog
	seen := make(map[string]struct{})

	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, label, found := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		label = strings.TrimSpace(label)
		if !found {
			label = key
		}
		if key == "" || label == "" {
			return nil, fmt.Errorf("%w: entry %q", ErrMalformedCatalog, part)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate room %q", ErrMalformedCatalog, key)
		}

		seen[key] = struct{}{}
		catalog = append(catalog, Room{Key: key, Label: label})
	}

	if len(catalog) == 0 {
		return nil, fmt.Errorf("%w: no rooms defined", ErrMalformedCatalog)
	}
	return catalog, nil
}

// Contains reports whether key names a configured room.
func (c Catalog) Contains(key string) bool {
	_, ok := c.Label(key)
	return ok
}

// Label returns the display label for key.
func (c Catalog) Label(key string) (string, bool) {
	for _, room := range c {
		if room.Key == key {
			return room.Label, true
		}
	}
	return "", false
}

// String renders the catalog in the format accepted by ParseCatalog.
func (c Catalog) String() string {
	parts := make([]string, 0, len(c))
	for _, room := range c {
		parts = append(parts, room.Key+"="+room.Label)
	}
	return strings.Join(parts, ",")
}

// Keys returns the room keys in catalog order.
func (c Catalog) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, room := range c {
		keys = append(keys, room.Key)
	}
	return keys
}
