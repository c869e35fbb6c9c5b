package rooms

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalog(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Catalog
		wantErr bool
	}{
		{
			name:  "key and label pairs",
			input: "geral=Sala Geral, tecnologia=Sala Tecnologia",
			want:  Catalog{{Key: "geral", Label: "Sala Geral"}, {Key: "tecnologia", Label: "Sala Tecnologia"}},
		},
		{
			name:  "bare key uses itself as label",
			input: "lobby",
			want:  Catalog{{Key: "lobby", Label: "lobby"}},
		},
		{
			name:  "empty entries are skipped",
			input: "a=A,,b=B,",
			want:  Catalog{{Key: "a", Label: "A"}, {Key: "b", Label: "B"}},
		},
		{name: "duplicate key", input: "a=A,a=Again", wantErr: true},
		{name: "missing key", input: "=Label", wantErr: true},
		{name: "missing label", input: "a=", wantErr: true},
		{name: "nothing defined", input: " , ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCatalog(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedCatalog))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalogRoundTripString(t *testing.T) {
	catalog := DefaultCatalog()
	parsed, err := ParseCatalog(catalog.String())
	require.NoError(t, err)
	assert.Equal(t, catalog, parsed)
	assert.Equal(t, []string{"geral", "tecnologia"}, parsed.Keys())
}

func TestRegistry_IsValidRoom(t *testing.T) {
	r := NewRegistry(DefaultCatalog())

	assert.True(t, r.IsValidRoom("geral"))
	assert.True(t, r.IsValidRoom("tecnologia"))
	assert.False(t, r.IsValidRoom("random"))
	assert.False(t, r.IsValidRoom(""))
}

func TestRegistry_JoinMovesBetweenRooms(t *testing.T) {
	r := NewRegistry(DefaultCatalog())

	r.Join("geral", "c1")
	r.Join("geral", "c2")
	assert.Equal(t, []string{"c1", "c2"}, r.Members("geral"))

	r.Join("tecnologia", "c1")
	assert.Equal(t, []string{"c2"}, r.Members("geral"))
	assert.Equal(t, []string{"c1"}, r.Members("tecnologia"))

	room, ok := r.RoomOf("c1")
	require.True(t, ok)
	assert.Equal(t, "tecnologia", room)
}

func TestRegistry_JoinSameRoomTwice(t *testing.T) {
	r := NewRegistry(DefaultCatalog())

	r.Join("geral", "c1")
	r.Join("geral", "c1")

	assert.Equal(t, 1, r.Count("geral"))
	assert.Equal(t, 1, r.Occupied())
}

func TestRegistry_Leave(t *testing.T) {
	r := NewRegistry(DefaultCatalog())

	r.Join("geral", "c1")
	r.Leave("tecnologia", "c1") // not a member there
	assert.Equal(t, 1, r.Count("geral"))

	r.Leave("geral", "c1")
	r.Leave("geral", "c1")
	assert.Empty(t, r.Members("geral"))
	assert.Equal(t, 0, r.Occupied())

	_, ok := r.RoomOf("c1")
	assert.False(t, ok)
}

func TestRegistry_UnknownRoomHasNoMembers(t *testing.T) {
	r := NewRegistry(DefaultCatalog())

	members := r.Members("nowhere")
	assert.NotNil(t, members)
	assert.Empty(t, members)
	assert.Equal(t, 0, r.Count("nowhere"))
}

// After any sequence of joins every connection is in exactly one room and
// the reverse index agrees with the member sets.
func TestRegistry_SingleRoomInvariant(t *testing.T) {
	r := NewRegistry(DefaultCatalog())
	joins := []struct{ room, conn string }{
		{"geral", "a"}, {"geral", "b"}, {"tecnologia", "a"}, {"geral", "c"},
		{"tecnologia", "b"}, {"geral", "a"}, {"geral", "a"}, {"tecnologia", "c"},
	}

	for _, j := range joins {
		r.Join(j.room, j.conn)

		seen := make(map[string]int)
		for _, room := range []string{"geral", "tecnologia"} {
			for _, id := range r.Members(room) {
				seen[id]++
				current, ok := r.RoomOf(id)
				require.True(t, ok)
				assert.Equal(t, room, current)
			}
		}
		for id, n := range seen {
			assert.Equal(t, 1, n, "connection %s in %d rooms", id, n)
		}
	}
}
