package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

type ServerConfig struct {
	// Codec is shared by every subscription; frames are relayed verbatim.
	Codec      Codec
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

// SignalWSController serves session channels over websocket.
type SignalWSController struct {
	Orch *app.Orchestrator
	cfg  ServerConfig
}

func NewSignalWSController(orch *app.Orchestrator, cfg ServerConfig) *SignalWSController {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}
	return &SignalWSController{Orch: orch, cfg: cfg}
}

// WsSignalConn is the hub end of one subscription. It implements
// core.SignalConnection.
type WsSignalConn struct {
	conn    *websocket.Conn
	send    chan core.Frame
	msgType int

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	session := domain.SessionID(c.Param("session"))
	participant := domain.ParticipantID(c.Query("participant"))
	if participant == "" {
		participant = domain.ParticipantID(c.GetString("client_token"))
	}
	if session == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session required"})
		return
	}
	if err := domain.ValidateParticipantID(participant); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if want := c.DefaultQuery("codec", "json"); want != ctl.cfg.Codec.Name() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hub speaks " + ctl.cfg.Codec.Name()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}
	conn := &WsSignalConn{
		conn:    ws,
		send:    make(chan core.Frame, ctl.cfg.SendBuffer),
		msgType: ctl.cfg.Codec.MessageType(),
	}

	ctx, cancel := context.WithCancel(ctx)
	cid := ctl.Orch.Subscribe(session, participant, conn, cancel)
	log.Info().Str("module", "signal").Str("session", string(session)).Str("participant", string(participant)).Str("conn", string(cid)).Msg("new WS subscription")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, cid, conn)
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(c.msgType, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cid core.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		ctl.Orch.Unsubscribe(cid)
		cancel()
		c.Close()
	}()

	pongWait := ctl.cfg.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// A kick cancels ctx while ReadMessage blocks; closing the socket
	// unblocks it.
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
			}
			return
		}
		ctl.Orch.OnFrame(cid, core.Frame(data))
	}
}
