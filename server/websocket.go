package server

import (
	"net/http"
	"time"

	"github.com/RyanBlaney/sonido-critique/jobs"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(s.config.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
}

// streamJob pushes every status change of a job to the client and closes after the
// terminal update
func (s *Server) streamJob(c *gin.Context) {
	id := c.Param("id")
	logger := s.logger.WithContext(c.Request.Context()).WithFields(logging.Fields{"function": "streamJob", "job_id": id})

	updates, unsubscribe, err := s.queue.Subscribe(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		logger.Warn("WebSocket upgrade failed", logging.Fields{"error": err.Error()})
		return
	}

	go readPump(conn, unsubscribe, logger)
	writePump(conn, updates, logger)
}

// readPump discards client messages and unsubscribes once the client goes away
func readPump(conn *websocket.Conn, unsubscribe func(), logger logging.Logger) {
	defer unsubscribe()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read ended", logging.Fields{"error": err.Error()})
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, updates <-chan jobs.Job, logger logging.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case job, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream finished"))
				return
			}
			if err := conn.WriteJSON(job); err != nil {
				logger.Debug("WebSocket write failed", logging.Fields{"error": err.Error()})
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
