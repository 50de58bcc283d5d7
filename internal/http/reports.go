package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/werpoz/chatrelay/internal/http/middleware"
	"github.com/werpoz/chatrelay/internal/repository"
)

func listEventsHandler(archive repository.ArchiveRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit := 50
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		since := time.Now().Add(-24 * time.Hour)
		if v := c.QueryParam("since"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				since = t
			}
		}

		namePrefix := strings.TrimSpace(c.QueryParam("name"))

		events, err := archive.List(c.Request().Context(), tenantID, namePrefix, since, limit)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"since":   since,
			"count":   len(events),
			"results": events,
		})
	}
}
