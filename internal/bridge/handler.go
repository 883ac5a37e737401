// Package bridge lets a browser round view drive one session controller
// over a websocket: the view pushes environment events and camera frames,
// the controller pushes state, warnings and terminations back.
package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/utils/clock"

	"github.com/enftaurus/vidyamitra/internal/ledger"
	"github.com/enftaurus/vidyamitra/internal/presence"
	"github.com/enftaurus/vidyamitra/internal/session"
	"github.com/enftaurus/vidyamitra/pkg/errclass"
	"github.com/enftaurus/vidyamitra/pkg/logging"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
	maxMessageSize = 4 << 20
)

// Session is what a Factory hands back for one connection.
type Session struct {
	Controller *session.Controller
	Ledger     *ledger.Ledger
}

// Factory builds the session for one connection. cam is fed by the frames
// the view sends; listener forwards controller callbacks to the view.
type Factory func(userID string, round model.RoundKey, cam presence.Camera, listener session.Listener) (*Session, error)

// Handler upgrades GET /ws/session?round=<key> requests.
type Handler struct {
	factory        Factory
	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	clock          clock.PassiveClock
	log            *logging.Logger
}

// NewHandler creates a handler. An empty allowedOrigins accepts any origin.
func NewHandler(factory Factory, allowedOrigins []string, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Global()
	}
	h := &Handler{
		factory:        factory,
		allowedOrigins: make(map[string]bool),
		clock:          clock.RealClock{},
		log:            log.WithFields(map[string]any{"component": "bridge"}),
	}
	for _, o := range allowedOrigins {
		if o != "" {
			h.allowedOrigins[o] = true
		}
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	return h.allowedOrigins[r.Header.Get("Origin")]
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("user_id")
	if err != nil || cookie.Value == "" {
		http.Error(w, "User not logged in", http.StatusUnauthorized)
		return
	}
	round, err := model.ParseRoundKey(r.URL.Query().Get("round"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}
	h.serve(r.Context(), ws, cookie.Value, round)
}

// conn serializes writes through one goroutine.
type conn struct {
	ws   *websocket.Conn
	send chan Outbound
	done chan struct{}
	once sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{
		ws:   ws,
		send: make(chan Outbound, sendBufferSize),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *conn) push(t MessageType, payload any) {
	select {
	case c.send <- Outbound{Type: t, Payload: payload}:
	case <-c.done:
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// viewListener forwards controller callbacks to the websocket.
type viewListener struct {
	c    *conn
	ctrl *session.Controller
}

func (l *viewListener) OnStateChange(s session.State) {
	var integrity model.IntegrityState
	if l.ctrl != nil {
		integrity = l.ctrl.Snapshot()
	}
	l.c.push(MsgState, StatePayload{State: s, Integrity: integrity})
}

func (l *viewListener) OnWarning(w session.Warning) {
	l.c.push(MsgWarning, w)
}

func (l *viewListener) OnTerminated(t session.Termination) {
	l.c.push(MsgTerminated, TerminatedPayload{Cause: t.Cause, Message: t.Message, Redirect: t.Redirect})
}

func (l *viewListener) OnBlocked(next model.RoundKey, err error) {
	l.c.push(MsgBlocked, BlockedPayload{Next: next, Code: errclass.Code(err), Message: message(err)})
}

func (l *viewListener) OnNotice(err error) {
	l.c.push(MsgNotice, NoticePayload{Code: errclass.Code(err), Message: message(err)})
}

func message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (h *Handler) serve(parent context.Context, ws *websocket.Conn, userID string, round model.RoundKey) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c := newConn(ws)
	defer c.close()

	buf := presence.NewFrameBuffer()
	listener := &viewListener{c: c}
	sess, err := h.factory(userID, round, buf, listener)
	if err != nil {
		h.log.ErrorErr("create session", err, map[string]any{"user_id": userID, "round": round})
		listener.OnNotice(err)
		return
	}
	listener.ctrl = sess.Controller
	defer sess.Controller.Stop()

	log := h.log.WithFields(map[string]any{"session_id": sess.Controller.SessionID(), "user_id": userID, "round": round})
	log.Info("view connected")
	defer log.Info("view disconnected")

	// Blocked and unavailable outcomes reach the view through the listener.
	if err := sess.Controller.Start(ctx); err != nil {
		log.Info("session not started", map[string]any{"error": err.Error()})
	}

	ws.SetReadLimit(maxMessageSize)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.push(MsgNotice, NoticePayload{Message: "malformed message"})
			continue
		}
		h.dispatch(ctx, sess, buf, c, in)
	}
}

func (h *Handler) dispatch(ctx context.Context, sess *Session, buf *presence.FrameBuffer, c *conn, in Inbound) {
	ctrl := sess.Controller
	switch in.Type {
	case MsgLoaded:
		ctrl.SetLoaded(in.Loaded == nil || *in.Loaded)
	case MsgFullscreen:
		ctrl.SetFullscreen(in.Active)
	case MsgFullscreenDenied:
		ctrl.FullscreenDenied()
	case MsgVisibility:
		ctrl.VisibilityChanged(ctx, in.Hidden)
	case MsgFrame:
		frame, err := parseDataURL(in.Image)
		if err != nil {
			h.log.Debug("dropping frame", map[string]any{"error": err.Error()})
			return
		}
		frame.CapturedAt = h.clock.Now()
		buf.Push(frame)
	case MsgCameraError:
		buf.Fail(errclass.ErrDeviceUnavailable.WithMessage(in.Error))
	case MsgComplete:
		if err := ctrl.Complete(ctx); err != nil {
			c.push(MsgNotice, NoticePayload{Code: errclass.Code(err), Message: err.Error()})
			return
		}
		c.push(MsgCompleted, CompletedPayload{Round: ctrl.Round(), CycleClosed: sess.Ledger.Closed()})
	default:
		c.push(MsgNotice, NoticePayload{Message: "unknown message type " + string(in.Type)})
	}
}
