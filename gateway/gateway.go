// gateway/gateway.go
package gateway

import (
	"net/http"
	"sync"
	"time"

	"quickconnect/models"
	"quickconnect/services/matching"
	"quickconnect/services/registry"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const readLimit = 1 << 20

// Gateway bridges websocket connections to the matching coordinator and
// session lifecycle.
type Gateway struct {
	Coordinator *matching.Coordinator
	Registry    *registry.Registry
	Lifecycle   sessionLifecycle
	Repo        professionalReader
	Hub         *Hub
	Logger      *zap.Logger

	upgrader websocket.Upgrader
	calls    *callClock

	browseMu    sync.Mutex
	browseConns map[*conn]struct{}
}

// professionalReader is the slice of the repository the gateway needs.
type professionalReader interface {
	GetByID(id string) (*models.Professional, error)
}

func New(coord *matching.Coordinator, reg *registry.Registry, lc sessionLifecycle, repo professionalReader, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		Coordinator: coord,
		Registry:    reg,
		Lifecycle:   lc,
		Repo:        repo,
		Hub:         NewHub(logger),
		Logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		browseConns: make(map[*conn]struct{}),
		calls:       newCallClock(),
	}
	// Lock churn from any source, including the expiry sweeper, reaches
	// every browsing client.
	reg.Subscribe(g.onRegistryEvent)
	return g
}

func (g *Gateway) onRegistryEvent(ev registry.Event) {
	update := AvailabilityUpdate{
		Type:           TypeAvailabilityUpdate,
		ProfessionalID: ev.ProfessionalID,
		Available:      ev.Type == registry.EventReleased,
	}
	g.browseMu.Lock()
	targets := make([]*conn, 0, len(g.browseConns))
	for c := range g.browseConns {
		targets = append(targets, c)
	}
	g.browseMu.Unlock()
	for _, c := range targets {
		c.enqueue(update)
	}
}

// HandleBrowse serves the quick-connect browse socket. The client receives a
// ranked candidate snapshot on connect, can lock and release professionals
// while deciding, and has every outstanding reservation released when the
// socket drops.
func (g *Gateway) HandleBrowse(c *gin.Context) {
	category := c.Param("category")
	clientID := c.Query("client_id")

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	bc := newConn(ws)
	go bc.writePump(g.Logger)

	g.browseMu.Lock()
	g.browseConns[bc] = struct{}{}
	g.browseMu.Unlock()

	// Reservations taken over this socket, token by professional id.
	reservations := make(map[string]models.Reservation)

	defer func() {
		g.browseMu.Lock()
		delete(g.browseConns, bc)
		g.browseMu.Unlock()
		for _, res := range reservations {
			if err := g.Coordinator.Abandon(res); err != nil {
				g.Logger.Warn("failed to release reservation on disconnect",
					zap.String("professional", res.ProfessionalID), zap.Error(err))
			}
		}
		if clientID != "" {
			// Belt and braces for reservations taken out of band.
			g.Registry.ReleaseAllFor(clientID)
		}
		bc.close()
	}()

	g.sendSnapshot(c, bc, clientID, category)

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
			bc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "invalid_message", Detail: err.Error()})
			continue
		}

		switch msg := parsed.(type) {
		case ClientIdentification:
			clientID = msg.ClientID
		case ListProfessionals:
			cat := msg.Category
			if cat == "" {
				cat = category
			}
			g.sendSnapshot(c, bc, clientID, cat)
		case LockRequest:
			g.handleLock(bc, clientID, msg.ProfessionalID, reservations)
		case ReleaseRequest:
			g.handleRelease(bc, msg.ProfessionalID, reservations)
		default:
			bc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "unexpected_message",
				Detail: "message not valid on a browse connection"})
		}
	}
}

func (g *Gateway) sendSnapshot(c *gin.Context, bc *conn, clientID, category string) {
	req := models.MatchRequest{ClientID: clientID, Category: category}
	candidates, err := g.Coordinator.FindCandidates(c.Request.Context(), req)
	if err != nil {
		if matching.IsCode(err, matching.CodeNoCandidates) {
			bc.enqueue(ProfessionalList{Type: TypeProfessionals, Category: category})
			return
		}
		g.Logger.Warn("candidate snapshot failed", zap.String("category", category), zap.Error(err))
		bc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "snapshot_failed"})
		return
	}

	list := ProfessionalList{Type: TypeProfessionals, Category: category}
	for _, cand := range candidates {
		p := cand.Professional
		list.Professionals = append(list.Professionals, ProfessionalSummary{
			ID:        p.ID,
			Name:      p.Name,
			Category:  p.PrimaryCategory,
			Rate:      p.Rates.Base,
			Online:    p.Live.Online,
			Available: p.Live.Available,
			Score:     cand.Score,
		})
	}
	bc.enqueue(list)
}

func (g *Gateway) handleLock(bc *conn, clientID, professionalID string, reservations map[string]models.Reservation) {
	if clientID == "" {
		bc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "unidentified_client",
			Detail: "send client_identification before lock"})
		return
	}
	res, err := g.Coordinator.Reserve(professionalID, clientID)
	if err != nil {
		result := LockResult{Type: TypeLocked, ProfessionalID: professionalID, Success: false}
		if live, ok := g.Registry.LiveState(professionalID); ok && live.Lock != nil {
			result.LockedBy = live.Lock.Holder
		}
		bc.enqueue(result)
		return
	}
	reservations[professionalID] = res
	expires := res.ExpiresAt
	bc.enqueue(LockResult{
		Type:           TypeLocked,
		ProfessionalID: professionalID,
		Success:        true,
		ExpiresAt:      &expires,
	})
}

func (g *Gateway) handleRelease(bc *conn, professionalID string, reservations map[string]models.Reservation) {
	res, ok := reservations[professionalID]
	if !ok {
		bc.enqueue(ErrorEvent{Type: TypeErrorEvent, Code: "not_reserved",
			Detail: "no reservation held for professional"})
		return
	}
	delete(reservations, professionalID)
	if err := g.Coordinator.Abandon(res); err != nil {
		g.Logger.Warn("release failed", zap.String("professional", professionalID), zap.Error(err))
	}
	bc.enqueue(ReleaseResult{Type: TypeReleased, ProfessionalID: professionalID})
}

// configureKeepalive drops sockets whose peer stops ponging within the idle
// window.
func configureKeepalive(ws *websocket.Conn, idle time.Duration) {
	_ = ws.SetReadDeadline(time.Now().Add(idle))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(idle))
	})
}
