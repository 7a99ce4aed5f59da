package handler

import (
	"context"
	"net/http"
	"time"

	"marketplace-bidding/services/bidding/helpers"
	"marketplace-bidding/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WatchProductHandler handles GET /ads/:product_id/watch. It pushes the
// product and its ranked bids as a JSON frame on connect and after every
// change until the client goes away.
func (h *BiddingHandler) WatchProductHandler(c *gin.Context) {
	productID := c.Param("product_id")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	views, err := h.service.WatchProduct(ctx, productID)
	if err != nil {
		helpers.RespondError(c, "WatchProductHandler", err, map[string]any{"product_id": productID})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		utils.Warn("WatchProductHandler: upgrade failed", map[string]any{
			"product_id": productID,
			"error":      err.Error(),
		})
		return
	}
	defer conn.Close()

	utils.Info("WatchProductHandler: watcher connected", map[string]any{"product_id": productID})

	// reader: the client sends nothing useful, but reading is how close
	// frames and dead peers are noticed
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					utils.Warn("WatchProductHandler: unexpected close", map[string]any{
						"product_id": productID,
						"error":      err.Error(),
					})
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			utils.Info("WatchProductHandler: watcher disconnected", map[string]any{"product_id": productID})
			return
		case view, ok := <-views:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(helpers.ToProductViewResponse(view)); err != nil {
				utils.Warn("WatchProductHandler: write failed", map[string]any{
					"product_id": productID,
					"error":      err.Error(),
				})
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
