package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/medsbot/internal/reminder"
	"github.com/talkincode/medsbot/internal/webserver"
	"go.uber.org/zap"
)

type deliveryView struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

type schedulerView struct {
	reminder.Status
	Delivery deliveryView        `json:"delivery"`
	Recent   []reminder.Reminder `json:"recent"`
}

type runView struct {
	Fired  int                  `json:"fired"`
	Result reminder.CycleResult `json:"result"`
}

// registerSchedulerRoutes registers reminder scheduler routes
func registerSchedulerRoutes(srv *webserver.Server) {
	srv.ApiGET("/scheduler", getScheduler)
	srv.ApiPOST("/scheduler/run", triggerScheduler)
}

func getScheduler(c echo.Context) error {
	appCtx := GetAppContext(c)
	recent := appCtx.RecentReminders()
	if recent == nil {
		recent = []reminder.Reminder{}
	}
	sent, failed := appCtx.DeliveryStats()
	return ok(c, schedulerView{
		Status:   appCtx.Scheduler().Status(),
		Delivery: deliveryView{Sent: sent, Failed: failed},
		Recent:   recent,
	})
}

// triggerScheduler runs one reminder cycle immediately. Reminders fired
// before a failing check are still reported.
func triggerScheduler(c echo.Context) error {
	res, err := GetAppContext(c).RunRemindersNow(c.Request().Context())
	view := runView{Fired: res.Fired(), Result: res}
	if err != nil {
		zap.L().Error("adminapi: manual reminder run failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "RUN_FAILED", err.Error(), view)
	}
	return ok(c, view)
}
