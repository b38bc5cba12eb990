package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/messaging"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Streamer pushes subscription snapshots to websocket clients.
type Streamer struct {
	broker   messaging.Broker
	upgrader websocket.Upgrader
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewStreamer(broker messaging.Broker, allowedOrigins []string, log *logger.Logger, m *metrics.Metrics) *Streamer {
	return &Streamer{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger:  log,
		metrics: m,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Serve upgrades the request and streams snapshots of q until the client
// goes away.
func (st *Streamer) Serve(c *gin.Context, q Query) {
	conn, err := st.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		st.logger.Warn(err, "Websocket upgrade failed", "path", c.Request.URL.Path)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := Subscribe(ctx, st.broker, q, st.metrics)
	if err != nil {
		st.logger.Error(err, "Failed to open subscription", "collection", q.Collection)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
			time.Now().Add(writeWait))
		return
	}
	defer sub.Close()

	// reader: only handles pongs and notices disconnects
	go func() {
		defer sub.Close()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshots := make(chan *Snapshot)
	go func() {
		defer close(snapshots)
		for {
			snap, err := sub.Next(ctx)
			if err != nil {
				if !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
					st.logger.Warn(err, "Snapshot load failed", "collection", q.Collection)
				}
				return
			}
			select {
			case snapshots <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
