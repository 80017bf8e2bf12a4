package session

import (
	"log/slog"

	"github.com/jpenner/bastion/bastion-core/protocol"
)

// Session is the per-message handler context. UID is zero until the client
// authenticates.
type Session struct {
	hub    *Hub
	client *client
	UID    int
}

// Bind marks the session as authenticated.
func (s *Session) Bind(uid int) {
	s.UID = uid
	if s.hub != nil {
		s.hub.bind(s.client, uid)
	}
}

// Handler processes one envelope. Return nil to send no reply.
type Handler func(s *Session, env protocol.Envelope) (*protocol.Envelope, error)

// Router maps message types to handlers.
type Router struct {
	handlers map[string]Handler
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Register installs a handler for a message type.
func (r *Router) Register(msgType string, h Handler) {
	r.handlers[msgType] = h
}

// Dispatch routes an envelope to its handler and shapes the reply. Unknown
// types and handler failures come back as error envelopes; the connection
// stays open.
func (r *Router) Dispatch(s *Session, env protocol.Envelope) *protocol.Envelope {
	h, ok := r.handlers[env.Type]
	if !ok {
		slog.Warn("no handler for message type", "type", env.Type, "uid", s.UID)
		return errorEnvelope(env, "unknown message type")
	}
	resp, err := h(s, env)
	if err != nil {
		slog.Error("handler error", "type", env.Type, "uid", s.UID, "error", err)
		return errorEnvelope(env, err.Error())
	}
	if resp != nil {
		resp.RequestID = env.RequestID
	}
	return resp
}

func errorEnvelope(req protocol.Envelope, msg string) *protocol.Envelope {
	env, err := protocol.NewEnvelope(protocol.TypeError, req.RequestID, protocol.ErrorMessage{Error: msg})
	if err != nil {
		return nil
	}
	return &env
}
