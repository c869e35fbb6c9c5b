// Package server implements the HTTP and WebSocket transport of the room chat
// service.
//
// A single Hub goroutine owns the room registry, the session store and the
// typing coordinator. Client read pumps queue decoded frames and their final
// close on one channel, typing timers queue expiries on another, and the hub
// feeds both to the router in arrival order before fanning the resulting
// payloads out to client send buffers.
package server
