// Package session keeps the server-side state bound to each live connection.
package session

import (
	"errors"
	"sort"
	"time"
)

// ErrUnknownSession is returned when a connection id has no session record,
// typically because the connection already disconnected.
var ErrUnknownSession = errors.New("unknown session")

// Session is the state bound to one live connection.
type Session struct {
	ID          string
	UserName    string
	Room        string
	ConnectedAt time.Time
}

// Joined reports whether the session has both a user name and a room.
func (s Session) Joined() bool {
	return s.UserName != "" && s.Room != ""
}

// Store indexes sessions by connection id. It is not safe for concurrent
// use; the hub's event loop owns it.
type Store struct {
	sessions map[string]*Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Open creates the session for a newly established connection. Opening an
// id that already exists resets it.
func (s *Store) Open(connID string, at time.Time) Session {
	sess := &Session{ID: connID, ConnectedAt: at}
	s.sessions[connID] = sess
	return *sess
}

// Bind sets the user name of a connection, overwriting a previous binding.
func (s *Store) Bind(connID, userName string) error {
	sess, ok := s.sessions[connID]
	if !ok {
		return ErrUnknownSession
	}
	sess.UserName = userName
	return nil
}

// SetRoom updates the current room of a connection. An empty room clears it.
func (s *Store) SetRoom(connID, room string) error {
	sess, ok := s.sessions[connID]
	if !ok {
		return ErrUnknownSession
	}
	sess.Room = room
	return nil
}

// Get returns a copy of the session for connID.
func (s *Store) Get(connID string) (Session, bool) {
	sess, ok := s.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Remove deletes the session and returns its last state.
func (s *Store) Remove(connID string) (Session, bool) {
	sess, ok := s.sessions[connID]
	if !ok {
		return Session{}, false
	}
	delete(s.sessions, connID)
	return *sess, true
}

// InRoom returns the sessions whose current room is room, ordered by id.
func (s *Store) InRoom(room string) []Session {
	var out []Session
	for _, sess := range s.sessions {
		if sess.Room == room {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return len(s.sessions)
}
