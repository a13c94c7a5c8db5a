package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bingx-trading-bot/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamTopics are pushed to websocket clients.
var streamTopics = []events.Event{
	events.EventCandleSealed,
	events.EventStrategySignal,
	events.EventRiskAlert,
	events.EventPositionChange,
	events.EventOrderFilled,
	events.EventOrderRejected,
}

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func topicOf(v any) string {
	switch v.(type) {
	case events.CandleSealed:
		return string(events.EventCandleSealed)
	case events.SignalEvent:
		return string(events.EventStrategySignal)
	case events.RiskAlert:
		return string(events.EventRiskAlert)
	case events.PositionEvent:
		return string(events.EventPositionChange)
	case events.OrderEvent:
		return "order"
	default:
		return "event"
	}
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	stream, unsub := s.Bus.SubscribeMany(100, streamTopics...)
	defer unsub()

	// the read loop only notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(wsMessage{Type: topicOf(msg), Data: msg}); err != nil {
				s.log.Debug().Err(err).Msg("ws write failed")
				return
			}
		}
	}
}
