// Package ws runs the WebSocket side of the protocol: the in-band token
// handshake, ping fan-out to subscribers, and server-initiated teardown.
package ws

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/crescent-mc/chisel/internal/metrics"
	"github.com/crescent-mc/chisel/internal/session"
	"github.com/crescent-mc/chisel/internal/user"
	"github.com/crescent-mc/chisel/internal/wire"
)

const (
	// pingRate matches the limit advertised by /api/limits. Pings beyond
	// the budget are dropped, not fatal.
	pingRate = 32
	// closeReAuth tells the client its token went stale.
	closeReAuth ws.StatusCode = 4000
	// closeBanned follows the ban toast.
	closeBanned ws.StatusCode = 4001
)

// Handler upgrades and serves WebSocket sessions.
type Handler struct {
	log        zerolog.Logger
	users      *user.Manager
	sessions   *session.Registry
	statePings *session.StatePings
	metrics    *metrics.Registry

	// banRitualDelay separates the ban toast from the close frame so the
	// client has time to render it.
	banRitualDelay time.Duration
	// replayDelay postpones the state-ping replay after a Sub; the
	// subscriber is still setting up its avatar at that point.
	replayDelay time.Duration
}

// NewHandler builds the session handler with production timings.
func NewHandler(log zerolog.Logger, users *user.Manager, sessions *session.Registry, statePings *session.StatePings, reg *metrics.Registry) *Handler {
	return &Handler{
		log:            log,
		users:          users,
		sessions:       sessions,
		statePings:     statePings,
		metrics:        reg,
		banRitualDelay: 6 * time.Second,
		replayDelay:    time.Second,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}
	go h.ServeConn(conn)
}

// ServeConn drives one session on an already-upgraded connection.
func (h *Handler) ServeConn(conn net.Conn) {
	defer conn.Close()

	info, err := h.authenticate(conn)
	if err != nil {
		h.log.Info().Err(err).Msg("WebSocket authentication failed")
		return
	}

	h.log.Info().Str("nickname", info.Nickname).Str("uuid", info.UUID.String()).Msg("WebSocket session started")
	if err := h.run(conn, info); err != nil {
		h.log.Debug().Err(err).Str("nickname", info.Nickname).Msg("WebSocket session ended")
	}
}

// authenticate consumes exactly one frame, which must carry a known token.
func (h *Handler) authenticate(conn net.Conn) (user.Userinfo, error) {
	msg, err := readC2S(conn)
	if err != nil {
		return user.Userinfo{}, err
	}
	tokenMsg, ok := msg.(wire.C2SToken)
	if !ok {
		return user.Userinfo{}, errors.New("unauthorized action before authentication")
	}
	token := string(tokenMsg.Token)
	if token == "" {
		return user.Userinfo{}, errors.New("empty token")
	}

	info, ok := h.users.Get(token)
	if !ok {
		h.writeClose(conn, closeReAuth, "Re-auth")
		return user.Userinfo{}, errors.New("unknown token")
	}
	if err := wsutil.WriteServerBinary(conn, wire.S2CAuth{}.Encode()); err != nil {
		return user.Userinfo{}, err
	}
	if info.Banned {
		h.banRitual(conn)
		return user.Userinfo{}, fmt.Errorf("%s is banned", info.Nickname)
	}
	return info, nil
}

type inbound struct {
	msg wire.C2S
	err error
}

func (h *Handler) run(conn net.Conn, info user.Userinfo) error {
	owner := info.UUID
	mailbox := h.sessions.Attach(owner)
	broadcast := h.sessions.Subscribers(owner)
	h.statePings.Reset(owner)
	if h.metrics != nil {
		h.metrics.Players.Inc()
	}

	subs := make(map[uuid.UUID]*session.Subscription)
	defer func() {
		for _, sub := range subs {
			sub.Cancel()
		}
		h.sessions.Detach(owner, mailbox)
		h.users.Remove(owner)
		if h.metrics != nil {
			h.metrics.Players.Dec()
		}
	}()

	done := make(chan struct{})
	defer close(done)

	reads := make(chan inbound)
	go func() {
		for {
			msg, err := readC2S(conn)
			select {
			case reads <- inbound{msg: msg, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	sess := &liveSession{
		owner:     owner,
		mailbox:   mailbox,
		broadcast: broadcast,
		subs:      subs,
		limiter:   rate.NewLimiter(pingRate, pingRate),
	}
	for {
		select {
		case in := <-reads:
			if in.err != nil {
				var decodeErr *decodeError
				if errors.As(in.err, &decodeErr) {
					if h.metrics != nil {
						h.metrics.DecodeErrors.Inc()
					}
					return in.err
				}
				// Plain disconnect.
				return nil
			}
			if err := h.handleC2S(conn, sess, in.msg); err != nil {
				return err
			}

		case msg := <-mailbox:
			switch msg.Kind {
			case session.MessagePing:
				if err := wsutil.WriteServerBinary(conn, msg.Frame); err != nil {
					return err
				}
			case session.MessageBanned:
				h.banRitual(conn)
				return fmt.Errorf("%s banned", info.Nickname)
			}
		}
	}
}

// State-ping control codes, carried in the second payload byte of a ping
// with the magic function id.
const (
	stateControlReset  byte = 0
	stateControlToggle byte = 1
)

// liveSession is the per-connection state the select loop mutates.
type liveSession struct {
	owner     uuid.UUID
	mailbox   chan session.Message
	broadcast *session.Broadcast
	subs      map[uuid.UUID]*session.Subscription
	limiter   *rate.Limiter

	// capture marks the next normal ping for the state-ping store; it
	// disarms once a ping is recorded.
	capture bool
}

func (h *Handler) handleC2S(conn net.Conn, sess *liveSession, msg wire.C2S) error {
	switch m := msg.(type) {
	case wire.C2SToken:
		return errors.New("authentication passed, but the client sent the token again")

	case wire.C2SPing:
		if !sess.limiter.Allow() {
			if h.metrics != nil {
				h.metrics.PingsDropped.Inc()
			}
			return nil
		}
		if m.FuncID == wire.StatePingFuncID {
			h.handleStateControl(sess, m)
			return nil
		}
		frame := wire.PingFromC2S(sess.owner, m)
		if sess.capture {
			h.statePings.Append(sess.owner, frame)
			sess.capture = false
		}
		if m.Echo {
			if err := wsutil.WriteServerBinary(conn, frame); err != nil {
				return err
			}
		}
		delivered := sess.broadcast.Publish(frame)
		if h.metrics != nil {
			h.metrics.PingsForwarded.Add(float64(delivered))
		}
		return nil

	case wire.C2SSub:
		if m.UUID == sess.owner {
			return nil
		}
		if old, ok := sess.subs[m.UUID]; ok {
			old.Cancel()
		}
		sub := h.sessions.Subscribers(m.UUID).Subscribe()
		sess.subs[m.UUID] = sub
		go h.forward(m.UUID, sess.mailbox, sub)
		return nil

	case wire.C2SUnsub:
		if m.UUID == sess.owner {
			return nil
		}
		sub, ok := sess.subs[m.UUID]
		if !ok {
			h.log.Warn().Str("uuid", m.UUID.String()).Msg("Unsub without a matching subscription")
			return nil
		}
		sub.Cancel()
		delete(sess.subs, m.UUID)
		return nil

	default:
		return fmt.Errorf("unhandled message %T", msg)
	}
}

// handleStateControl dispatches a magic-id ping. Unknown codes and short
// payloads are ignored so newer clients stay compatible.
func (h *Handler) handleStateControl(sess *liveSession, m wire.C2SPing) {
	if len(m.Payload) < 2 {
		return
	}
	switch m.Payload[1] {
	case stateControlReset:
		h.statePings.Reset(sess.owner)
	case stateControlToggle:
		sess.capture = !sess.capture
	}
}

// forward replays the target's remembered state pings and then pumps live
// frames into the session mailbox until the subscription is cancelled.
func (h *Handler) forward(target uuid.UUID, mailbox chan session.Message, sub *session.Subscription) {
	if h.replayDelay > 0 {
		time.Sleep(h.replayDelay)
	}
	for _, frame := range h.statePings.Snapshot(target) {
		select {
		case mailbox <- session.Ping(frame):
		default:
		}
	}
	for frame := range sub.C {
		select {
		case mailbox <- session.Ping(frame):
		default:
			if h.metrics != nil {
				h.metrics.PingsDropped.Inc()
			}
		}
	}
}

func (h *Handler) banRitual(conn net.Conn) {
	frame := wire.S2CToast{Severity: 2, Title: "You're banned!"}.Encode()
	if err := wsutil.WriteServerBinary(conn, frame); err != nil {
		h.log.Warn().Err(err).Msg("Ban toast not delivered")
		return
	}
	time.Sleep(h.banRitualDelay)
	h.writeClose(conn, closeBanned, "You're banned!")
}

func (h *Handler) writeClose(conn net.Conn, code ws.StatusCode, reason string) {
	frame := ws.NewCloseFrame(ws.NewCloseFrameBody(code, reason))
	if err := ws.WriteFrame(conn, frame); err != nil {
		h.log.Trace().Err(err).Msg("Close frame not delivered")
	}
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func readC2S(conn net.Conn) (wire.C2S, error) {
	data, err := wsutil.ReadClientBinary(conn)
	if err != nil {
		return nil, err
	}
	msg, err := wire.DecodeC2S(data)
	if err != nil {
		return nil, &decodeError{err: err}
	}
	return msg, nil
}
