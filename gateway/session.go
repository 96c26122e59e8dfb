// gateway/session.go
package gateway

import (
	"context"
	"sync"
	"time"

	"quickconnect/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// sessionLifecycle is the slice of the session state machine the gateway
// drives.
type sessionLifecycle interface {
	Create(ctx context.Context, pro *models.Professional, clientID, channel string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Accept(ctx context.Context, id string) (*models.Session, error)
	BeginCall(ctx context.Context, id string) (*models.Session, error)
	EndCall(ctx context.Context, id string) (*models.Session, error)
	AppendMessage(ctx context.Context, id, sender, text string) (*models.ChatMessage, error)
	RecordCallWindow(ctx context.Context, id string, startedAt, endedAt time.Time) (*models.Session, error)
	RecordCallQuality(ctx context.Context, id, quality string, issues []string) (*models.Session, error)
	Complete(ctx context.Context, id string, finalDuration *int, finalCost *float64) (*models.Session, error)
	Cancel(ctx context.Context, id string) (*models.Session, error)
	MarkDisconnected(ctx context.Context, id string) (*models.Session, error)
}

// callClock tracks the start of the in-flight call per session so the elapsed
// window can be recorded when the call ends.
type callClock struct {
	mu     sync.Mutex
	starts map[string]time.Time
}

func newCallClock() *callClock {
	return &callClock{starts: make(map[string]time.Time)}
}

func (c *callClock) start(sessionID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts[sessionID] = at
}

func (c *callClock) stop(sessionID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.starts[sessionID]
	if ok {
		delete(c.starts, sessionID)
	}
	return at, ok
}

// HandleSession serves the per-session socket for either end of a
// consultation. The client end creates the session on first connect; the
// professional end attaches to an existing one by id. A client drop while the
// session is live finalizes it as disconnected with elapsed time billed.
func (g *Gateway) HandleSession(c *gin.Context) {
	professionalID := c.Param("professional_id")
	clientID := c.Param("client_id")
	role := c.Query("role")
	if role != RoleProfessional {
		role = RoleClient
	}
	channel := c.Query("channel")
	sessionID := c.Query("session_id")

	ctx := c.Request.Context()

	var sess *models.Session
	var err error
	switch {
	case sessionID != "":
		sess, err = g.Lifecycle.Get(ctx, sessionID)
	case role == RoleClient:
		var pro *models.Professional
		pro, err = g.Repo.GetByID(professionalID)
		if err == nil {
			sess, err = g.Lifecycle.Create(ctx, pro, clientID, channel)
		}
	default:
		// A professional cannot open a session that does not exist yet.
		c.JSON(400, gin.H{"error": "session_id is required for the professional end"})
		return
	}
	if err != nil {
		c.JSON(404, gin.H{"error": "session not found"})
		return
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	sc := newConn(ws)
	go sc.writePump(g.Logger)

	g.Hub.join(sess.ID, role, sc)
	defer func() {
		g.Hub.leave(sess.ID, role, sc)
		g.handleSessionDrop(sess.ID, role)
		sc.close()
	}()

	sc.enqueue(SessionConnected{
		Type:      TypeSessionConnected,
		SessionID: sess.ID,
		Status:    sess.Status,
		RoomID:    sess.RoomID,
	})
	if role == RoleClient {
		// Let an already-attached professional know the client arrived.
		g.Hub.sendTo(sess.ID, RoleProfessional, SessionConnected{
			Type:      TypeSessionConnected,
			SessionID: sess.ID,
			Status:    sess.Status,
			RoomID:    sess.RoomID,
		})
	}

	ws.SetReadLimit(readLimit)
	configureKeepalive(ws, 5*time.Minute)
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := ParseClientMessage(data)
		if err != nil {
			sc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "invalid_message", Detail: err.Error()})
			continue
		}
		g.dispatchSessionMessage(context.Background(), sc, sess.ID, role, parsed)
	}
}

func (g *Gateway) dispatchSessionMessage(ctx context.Context, sc *conn, sessionID, role string, parsed any) {
	switch msg := parsed.(type) {
	case ConfirmSession:
		sess, err := g.Lifecycle.Accept(ctx, sessionID)
		if err != nil {
			sc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "confirm_failed", Detail: err.Error()})
			return
		}
		g.Hub.broadcast(sessionID, SessionConfirmed{
			Type:      TypeSessionConfirmed,
			SessionID: sessionID,
			Status:    sess.Status,
		})
	case ChatMessage:
		saved, err := g.Lifecycle.AppendMessage(ctx, sessionID, role, msg.Content)
		if err != nil {
			sc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "message_failed", Detail: err.Error()})
			return
		}
		g.Hub.broadcast(sessionID, MessageSent{
			Type:      TypeMessageSent,
			SessionID: sessionID,
			Sender:    role,
			Content:   saved.Text,
			SentAt:    saved.CreatedAt,
		})
	case CallInitiate:
		sess, err := g.Lifecycle.Get(ctx, sessionID)
		if err != nil || !sess.IsActive() {
			sc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "call_failed",
				Detail: "session is not active"})
			return
		}
		if !g.Hub.sendTo(sessionID, peerRole(role), IncomingCall{
			Type:      TypeIncomingCall,
			SessionID: sessionID,
			CallType:  msg.CallType,
			RoomID:    sess.RoomID,
		}) {
			sc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "peer_offline",
				Detail: "the other participant is not connected"})
		}
	case CallAccept:
		if _, err := g.Lifecycle.BeginCall(ctx, sessionID); err != nil {
			sc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "call_failed", Detail: err.Error()})
			return
		}
		g.calls.start(sessionID, time.Now())
		g.Hub.broadcast(sessionID, CallAccepted{Type: TypeCallAccepted, SessionID: sessionID})
	case CallReject:
		g.Hub.sendTo(sessionID, peerRole(role), CallRejected{
			Type:      TypeCallRejected,
			SessionID: sessionID,
			Reason:    msg.Reason,
		})
	case CallEnd:
		g.endCall(ctx, sc, sessionID, msg)
	case EndSession:
		g.endSession(ctx, sc, sessionID, msg)
	case ClientPaused:
		g.Hub.sendTo(sessionID, peerRole(role), PeerPaused{
			Type:      TypePeerPaused,
			SessionID: sessionID,
		})
	default:
		sc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "unexpected_message",
			Detail: "message not valid on a session connection"})
	}
}

func (g *Gateway) endCall(ctx context.Context, sc *conn, sessionID string, msg CallEnd) {
	if msg.Quality != "" || len(msg.Issues) > 0 {
		if _, err := g.Lifecycle.RecordCallQuality(ctx, sessionID, msg.Quality, msg.Issues); err != nil {
			g.Logger.Warn("failed to record call quality",
				zap.String("session", sessionID), zap.Error(err))
		}
	}
	seconds := 0
	if startedAt, ok := g.calls.stop(sessionID); ok {
		endedAt := time.Now()
		if _, err := g.Lifecycle.RecordCallWindow(ctx, sessionID, startedAt, endedAt); err != nil {
			g.Logger.Warn("failed to record call window",
				zap.String("session", sessionID), zap.Error(err))
		}
		seconds = int(endedAt.Sub(startedAt).Seconds())
	}
	if _, err := g.Lifecycle.EndCall(ctx, sessionID); err != nil {
		g.Logger.Debug("end call transition skipped",
			zap.String("session", sessionID), zap.Error(err))
	}
	g.Hub.broadcast(sessionID, CallEndedConfirm{
		Type:            TypeCallEndedConfirm,
		SessionID:       sessionID,
		DurationSeconds: seconds,
	})
}

func (g *Gateway) endSession(ctx context.Context, sc *conn, sessionID string, msg EndSession) {
	// Quality must land before Complete makes the record terminal.
	if msg.Quality != "" || len(msg.Issues) > 0 {
		if _, err := g.Lifecycle.RecordCallQuality(ctx, sessionID, msg.Quality, msg.Issues); err != nil {
			g.Logger.Warn("failed to record call quality",
				zap.String("session", sessionID), zap.Error(err))
		}
	}
	// An in-flight call still counts toward billing when the session ends
	// without an explicit call_end.
	if startedAt, ok := g.calls.stop(sessionID); ok {
		if _, err := g.Lifecycle.RecordCallWindow(ctx, sessionID, startedAt, time.Now()); err != nil {
			g.Logger.Warn("failed to record trailing call window",
				zap.String("session", sessionID), zap.Error(err))
		}
		if _, err := g.Lifecycle.EndCall(ctx, sessionID); err != nil {
			g.Logger.Debug("end call transition skipped",
				zap.String("session", sessionID), zap.Error(err))
		}
	}
	sess, err := g.Lifecycle.Complete(ctx, sessionID, msg.DurationMinutes, msg.Cost)
	if err != nil {
		sc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "end_failed", Detail: err.Error()})
		return
	}
	g.Hub.broadcast(sessionID, SessionEndedConfirm{
		Type:            TypeSessionEndedConfirm,
		SessionID:       sessionID,
		Status:          sess.Status,
		DurationMinutes: sess.DurationMinutes,
		Cost:            sess.Cost,
	})
}

// handleSessionDrop finalizes a session when its client end goes away without
// an explicit end_session. Professional drops leave the session running; the
// client is still connected and still being served, or will end it.
func (g *Gateway) handleSessionDrop(sessionID, role string) {
	if role != RoleClient {
		return
	}
	ctx := context.Background()
	sess, err := g.Lifecycle.Get(ctx, sessionID)
	if err != nil || sess.IsTerminal() {
		return
	}

	if startedAt, ok := g.calls.stop(sessionID); ok {
		if _, err := g.Lifecycle.RecordCallWindow(ctx, sessionID, startedAt, time.Now()); err != nil {
			g.Logger.Warn("failed to record trailing call window",
				zap.String("session", sessionID), zap.Error(err))
		}
	}

	if sess.Status == models.SessionPending {
		if _, err := g.Lifecycle.Cancel(ctx, sessionID); err != nil {
			g.Logger.Warn("failed to cancel abandoned session",
				zap.String("session", sessionID), zap.Error(err))
		}
		return
	}

	final, err := g.Lifecycle.MarkDisconnected(ctx, sessionID)
	if err != nil {
		g.Logger.Warn("failed to finalize dropped session",
			zap.String("session", sessionID), zap.Error(err))
		return
	}
	g.Hub.sendTo(sessionID, RoleProfessional, SessionEndedConfirm{
		Type:            TypeSessionEndedConfirm,
		SessionID:       sessionID,
		Status:          final.Status,
		DurationMinutes: final.DurationMinutes,
		Cost:            final.Cost,
	})
}
