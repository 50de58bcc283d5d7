package http

import (
	"net/http"

	"github.com/gorilla/websocket"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/werpoz/chatrelay/internal/http/middleware"
	"github.com/werpoz/chatrelay/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// tenant isolation happens at the hub; origins are the frontend's concern
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHandler upgrades the connection and registers it under the authenticated
// tenant. An optional session_id narrows what the frontend renders, the hub
// itself fans out per tenant.
func wsHandler(hub *realtime.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			log.Errorf("websocket upgrade failed: %v", err)
			return nil // upgrader already wrote the response
		}

		client := realtime.NewClient(hub, conn, tenantID, c.QueryParam("session_id"))
		hub.Add(client)
		client.Start()
		return nil
	}
}
