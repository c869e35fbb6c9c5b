// Package router turns inbound chat events into room membership changes,
// typing transitions and the outbound deliveries they owe.
//
// The router performs no I/O. Each handler mutates the registry, the session
// store and the typing coordinator first, then computes recipients from the
// resulting state and returns the deliveries in emission order. Handlers are
// not safe for concurrent use; the hub calls them from its event loop.
package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/Tyrowin/roomchat/internal/session"
	"github.com/Tyrowin/roomchat/internal/typing"
)

var (
	// ErrInvalidRoom is returned when a join targets a room outside the catalog.
	ErrInvalidRoom = errors.New("invalid room")
	// ErrNotInRoom is returned when an event requires membership the
	// connection does not have.
	ErrNotInRoom = errors.New("not in room")
)

// Delivery is one outbound event and the connections that receive it.
type Delivery struct {
	Recipients []string
	Event      string
	Payload    any
}

// Config tunes router policy.
type Config struct {
	// StrictMembership drops messages and typing signals addressed to a room
	// the sender has not joined.
	StrictMembership bool
	// Now stamps system notices. Defaults to time.Now.
	Now func() time.Time
}

// Router coordinates presence, typing and message fan-out.
type Router struct {
	cfg      Config
	rooms    *rooms.Registry
	sessions *session.Store
	typing   *typing.Coordinator
}

// New creates a router over the given state owners.
func New(cfg Config, registry *rooms.Registry, sessions *session.Store, coordinator *typing.Coordinator) *Router {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Router{
		cfg:      cfg,
		rooms:    registry,
		sessions: sessions,
		typing:   coordinator,
	}
}

// Connect opens the session for a new connection.
func (r *Router) Connect(connID string) {
	r.sessions.Open(connID, r.cfg.Now())
}

// Handle dispatches a decoded client frame.
func (r *Router) Handle(connID string, in protocol.Inbound) ([]Delivery, error) {
	switch {
	case in.Event == protocol.EventJoinRoom && in.Room != nil:
		return r.JoinRoom(connID, in.Room.User, in.Room.Room)
	case in.Event == protocol.EventUserLeft && in.Room != nil:
		return r.UserLeft(connID, in.Room.User, in.Room.Room)
	case in.Event == protocol.EventStopTyping && in.Room != nil:
		return r.StopTyping(connID, in.Room.User, in.Room.Room)
	case in.Event == protocol.EventMessage && in.Message != nil:
		return r.Message(connID, *in.Message)
	case in.Event == protocol.EventTyping && in.Typing != nil:
		return r.Typing(connID, in.Typing.User, in.Typing.Room, in.Typing.IsTyping)
	}
	return nil, fmt.Errorf("%w: %q", protocol.ErrMalformedPayload, in.Event)
}

// JoinRoom binds the user name, moves the connection into room and
// announces the arrival to everyone else in it.
func (r *Router) JoinRoom(connID, user, room string) ([]Delivery, error) {
	sess, ok := r.sessions.Get(connID)
	if !ok {
		return nil, session.ErrUnknownSession
	}
	if !r.rooms.IsValidRoom(room) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}

	var out []Delivery
	if sess.UserName != user && sess.Room == room {
		// Renamed in place: the old name's indicator belongs to nobody now.
		out = append(out, r.clearTyping(connID, room)...)
	}
	if err := r.sessions.Bind(connID, user); err != nil {
		return nil, err
	}
	out = append(out, r.transition(connID, room)...)

	notice := protocol.SystemNotice(protocol.TextJoined, user, room, r.cfg.Now())
	return appendDelivery(out, r.othersIn(room, connID), protocol.EventSystem, notice), nil
}

// UserLeft removes the connection from room and tells the remaining
// members. The session keeps its user name so a later join can reuse it.
func (r *Router) UserLeft(connID, user, room string) ([]Delivery, error) {
	sess, ok := r.sessions.Get(connID)
	if !ok {
		return nil, session.ErrUnknownSession
	}
	if sess.Room != room {
		return nil, fmt.Errorf("%w: %q", ErrNotInRoom, room)
	}

	clears := r.transition(connID, "")

	notice := protocol.SystemNotice(protocol.TextLeft, user, room, r.cfg.Now())
	out := appendDelivery(nil, r.othersIn(room, connID), protocol.EventSystem, notice)
	return append(out, clears...), nil
}

// Message clears the sender's typing indicator and fans the message out to
// every member of its room, the sender included exactly once.
func (r *Router) Message(connID string, msg protocol.ChatMessage) ([]Delivery, error) {
	if err := r.checkSender(connID, msg.Room); err != nil {
		return nil, err
	}

	out := r.stopTyping(connID, msg.User, msg.Room)

	recipients := r.rooms.Members(msg.Room)
	if !contains(recipients, connID) {
		recipients = append(recipients, connID)
	}
	msg.Type = protocol.TypeMessage
	return appendDelivery(out, recipients, protocol.EventMessage, msg), nil
}

// Typing handles a typing signal. A signal with isTyping false is a stop.
func (r *Router) Typing(connID, user, room string, isTyping bool) ([]Delivery, error) {
	if !isTyping {
		return r.StopTyping(connID, user, room)
	}
	if err := r.checkSender(connID, room); err != nil {
		return nil, err
	}

	if !r.typing.Start(connID, typing.Key{User: user, Room: room}) {
		return nil, nil
	}
	notice := protocol.TypingNotice{User: user, IsTyping: true}
	return appendDelivery(nil, r.typingAudience(room, user, connID), protocol.EventTyping, notice), nil
}

// StopTyping cancels the indicator and always tells the room it cleared.
func (r *Router) StopTyping(connID, user, room string) ([]Delivery, error) {
	if err := r.checkSender(connID, room); err != nil {
		return nil, err
	}
	return r.stopTyping(connID, user, room), nil
}

// Expire handles a fired typing timer.
func (r *Router) Expire(e typing.Expiry) []Delivery {
	if !r.typing.Expire(e) {
		return nil
	}
	notice := protocol.TypingNotice{User: e.Key.User, IsTyping: false}
	return appendDelivery(nil, r.typingAudience(e.Key.Room, e.Key.User, e.Owner), protocol.EventTyping, notice)
}

// Disconnect tears down the session: announces the disconnect, clears every
// typing indicator the connection owned, removes membership and finally the
// session itself.
func (r *Router) Disconnect(connID string) ([]Delivery, error) {
	sess, ok := r.sessions.Get(connID)
	if !ok {
		return nil, session.ErrUnknownSession
	}

	var clears []Delivery
	if sess.Room != "" {
		clears = r.transition(connID, "")
	}
	// Indicators started in rooms the connection never joined.
	clears = append(clears, r.clearTyping(connID, "")...)

	var out []Delivery
	if sess.Joined() {
		notice := protocol.SystemNotice(protocol.TextDisconnected, sess.UserName, sess.Room, r.cfg.Now())
		out = appendDelivery(out, r.othersIn(sess.Room, connID), protocol.EventSystem, notice)
	}

	r.sessions.Remove(connID)
	return append(out, clears...), nil
}

// transition is the single room change operation: it leaves the current
// room if it differs from room, then joins room unless it is empty. It
// returns the typing clears owed to the room that was left.
func (r *Router) transition(connID, room string) []Delivery {
	var out []Delivery

	if current, ok := r.rooms.RoomOf(connID); ok && current != room {
		keys := r.typing.DropOwnerInRoom(connID, current)
		r.rooms.Leave(current, connID)
		out = r.typingCleared(keys, connID)
	}
	if room != "" {
		r.rooms.Join(room, connID)
	}
	_ = r.sessions.SetRoom(connID, room)

	return out
}

// clearTyping forces the connection's indicators to Idle, limited to room
// unless room is empty, and returns the owed notifications.
func (r *Router) clearTyping(connID, room string) []Delivery {
	var keys []typing.Key
	if room == "" {
		keys = r.typing.DropOwner(connID)
	} else {
		keys = r.typing.DropOwnerInRoom(connID, room)
	}
	return r.typingCleared(keys, connID)
}

func (r *Router) typingCleared(keys []typing.Key, connID string) []Delivery {
	var out []Delivery
	for _, k := range keys {
		notice := protocol.TypingNotice{User: k.User, IsTyping: false}
		out = appendDelivery(out, r.typingAudience(k.Room, k.User, connID), protocol.EventTyping, notice)
	}
	return out
}

func (r *Router) stopTyping(connID, user, room string) []Delivery {
	r.typing.Stop(typing.Key{User: user, Room: room})
	notice := protocol.TypingNotice{User: user, IsTyping: false}
	return appendDelivery(nil, r.typingAudience(room, user, connID), protocol.EventTyping, notice)
}

func (r *Router) checkSender(connID, room string) error {
	sess, ok := r.sessions.Get(connID)
	if !ok {
		return session.ErrUnknownSession
	}
	if r.cfg.StrictMembership && sess.Room != room {
		return fmt.Errorf("%w: %q", ErrNotInRoom, room)
	}
	return nil
}

// othersIn returns the members of room except connID.
func (r *Router) othersIn(room, connID string) []string {
	members := r.rooms.Members(room)
	out := members[:0]
	for _, id := range members {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}

// typingAudience returns the members of room that should see user's
// indicator: everyone except the sender connection and any other
// connection bound to the same user name.
func (r *Router) typingAudience(room, user, connID string) []string {
	members := r.rooms.Members(room)
	out := members[:0]
	for _, id := range members {
		if id == connID {
			continue
		}
		if sess, ok := r.sessions.Get(id); ok && sess.UserName == user {
			continue
		}
		out = append(out, id)
	}
	return out
}

func appendDelivery(out []Delivery, recipients []string, event string, payload any) []Delivery {
	if len(recipients) == 0 {
		return out
	}
	return append(out, Delivery{Recipients: recipients, Event: event, Payload: payload})
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
