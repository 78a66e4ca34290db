package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/services"
	"github.com/typephoon/backend/internal/typerr"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// cross-origin is already policed by the CORS layer; websocket clients
	// ride the same cookie-based auth
	CheckOrigin: func(r *http.Request) bool { return true },
}

// closeWithReason rejects an upgraded socket with the error code as the
// close reason, so clients can distinguish INVALID_TOKEN from transient
// failures without a separate frame schema.
func closeWithReason(conn *websocket.Conn, err error) {
	reason := string(typerr.CodeOf(err))
	deadline := time.Now().Add(5 * time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	conn.Close()
}

// QueueInWS is the matchmaking socket. The upgrade happens before identity
// resolution so rejections reach the client as a close reason.
func QueueInWS(queueIn *services.QueueInService, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		typ := services.QueueInType(c.DefaultQuery("queue_in_type", string(services.QueueInNew)))
		if typ != services.QueueInNew && typ != services.QueueInReconnect {
			failValidation(c, "unknown queue_in_type")
			return
		}
		prevGameID, _ := strconv.ParseInt(c.Query("prev_game_id"), 10, 64)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithError(err).Warn("queue-in upgrade failed")
			return
		}

		ctx := c.Request.Context()
		ident, err := queueIn.Resolve(ctx, accessToken(c))
		if err != nil {
			closeWithReason(conn, err)
			return
		}

		session, err := queueIn.Join(ctx, conn, ident, typ, prevGameID)
		if err != nil {
			log.WithError(err).WithField("user_id", ident.Info.ID).Warn("queue-in join failed")
			closeWithReason(conn, err)
			return
		}

		// hold the handler until the session ends; the manager owns the socket
		session.CloseWait()
	}
}

// GameWS is the in-game socket carrying keystrokes both ways.
func GameWS(gameEvents *services.GameEventService, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		gameID, err := strconv.ParseInt(c.Query("game_id"), 10, 64)
		if err != nil || gameID == 0 {
			failValidation(c, "game_id is required")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithError(err).Warn("game upgrade failed")
			return
		}

		session, err := gameEvents.Subscribe(c.Request.Context(), conn, gameID, accessToken(c))
		if err != nil {
			closeWithReason(conn, err)
			return
		}
		session.CloseWait()
	}
}
