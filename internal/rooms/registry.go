package rooms

import "sort"

// Registry tracks room membership by connection id.
//
// A connection belongs to at most one room; Join moves it out of the
// previous room before adding it to the new one. The registry is not safe
// for concurrent use and is owned by the hub's event loop.
type Registry struct {
	catalog Catalog
	members map[string]map[string]struct{} // room -> set of connection ids
	where   map[string]string              // connection id -> room
}

// NewRegistry creates an empty registry for the given catalog.
func NewRegistry(catalog Catalog) *Registry {
	return &Registry{
		catalog: catalog,
		members: make(map[string]map[string]struct{}),
		where:   make(map[string]string),
	}
}

// Catalog returns the static room catalog.
func (r *Registry) Catalog() Catalog {
	return r.catalog
}

// IsValidRoom reports whether key is part of the configured catalog.
func (r *Registry) IsValidRoom(key string) bool {
	return r.catalog.Contains(key)
}

// Join adds connID to room, leaving any previously joined room first.
func (r *Registry) Join(room, connID string) {
	if current, ok := r.where[connID]; ok {
		if current == room {
			return
		}
		r.Leave(current, connID)
	}

	set, ok := r.members[room]
	if !ok {
		set = make(map[string]struct{})
		r.members[room] = set
	}
	set[connID] = struct{}{}
	r.where[connID] = room
}

// Leave removes connID from room. It is a no-op when connID is not a member.
func (r *Registry) Leave(room, connID string) {
	set, ok := r.members[room]
	if !ok {
		return
	}
	if _, member := set[connID]; !member {
		return
	}

	delete(set, connID)
	if len(set) == 0 {
		delete(r.members, room)
	}
	delete(r.where, connID)
}

// Members returns the sorted connection ids joined to room. Unknown rooms
// have no members.
func (r *Registry) Members(room string) []string {
	set := r.members[room]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RoomOf returns the room connID is joined to.
func (r *Registry) RoomOf(connID string) (string, bool) {
	room, ok := r.where[connID]
	return room, ok
}

// Count returns the number of members in room.
func (r *Registry) Count(room string) int {
	return len(r.members[room])
}

// Occupied returns the number of rooms with at least one member.
func (r *Registry) Occupied() int {
	return len(r.members)
}
