package adminapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"github.com/talkincode/medsbot/internal/webserver"
	"go.uber.org/zap"
)

type purchasePayload struct {
	Quantity int `json:"quantity"`
}

func registerPurchaseRoutes(srv *webserver.Server) {
	srv.ApiPOST("/medicines/:id/purchases", createPurchase)
	srv.ApiGET("/medicines/:id/purchases", listPurchases)
	srv.ApiGET("/purchases/export", exportPurchases)
}

// createPurchase adds (or, when negative, removes) stock units.
func createPurchase(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid medicine ID", nil)
	}
	var payload purchasePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse purchase", err.Error())
	}

	l := GetAppContext(c).Ledger()
	ctx := c.Request().Context()
	stock, err := l.ApplyAdjustment(ctx, id, payload.Quantity)
	if err != nil {
		return failLedger(c, err)
	}
	m, err := l.GetMedicine(ctx, id)
	if err != nil {
		return failLedger(c, err)
	}
	zap.L().Info("adminapi: purchase recorded",
		zap.Int64("medicine_id", id),
		zap.Int("quantity", payload.Quantity),
		zap.Int("stock", stock))
	return ok(c, newMedicineView(m, nil))
}

func listPurchases(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid medicine ID", nil)
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	rows, err := GetAppContext(c).Ledger().ListPurchases(c.Request().Context(), id, limit)
	if err != nil {
		return failLedger(c, err)
	}
	return list(c, rows, len(rows))
}

// exportPurchases streams the whole purchase log as CSV.
func exportPurchases(c echo.Context) error {
	rows, err := GetAppContext(c).Ledger().ListPurchases(c.Request().Context(), 0, 0)
	if err != nil {
		return failLedger(c, err)
	}
	body, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_FAILED", "Failed to encode purchases", err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", "purchases.csv"))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", body)
}
