// Package adminapi exposes the ledger and reminder scheduler over HTTP.
package adminapi

import (
	"github.com/labstack/echo/v4"
	"github.com/talkincode/medsbot/internal/app"
	"github.com/talkincode/medsbot/internal/webserver"
)

const appContextKey = "appCtx"

// Init registers every admin route on srv.
func Init(srv *webserver.Server, appCtx app.AppContext) {
	srv.Use(appContextMiddleware(appCtx))

	registerMedicineRoutes(srv)
	registerPurchaseRoutes(srv)
	registerPrescriptionRoutes(srv)
	registerSchedulerRoutes(srv)
	registerWhatsAppRoutes(srv)
	registerDbmsRoutes(srv)
}

func appContextMiddleware(appCtx app.AppContext) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(appContextKey, appCtx)
			return next(c)
		}
	}
}

// GetAppContext returns the application bound to the request.
func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(appContextKey).(app.AppContext)
}
