package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/medsbot/internal/ledger"
	"github.com/talkincode/medsbot/internal/webserver"
	"github.com/talkincode/medsbot/pkg/common"
)

type prescriptionPayload struct {
	ExpiryDate string `json:"expiry_date"` // DD.MM.YYYY or YYYY-MM-DD
}

type prescriptionView struct {
	MedicineID int64  `json:"medicine_id,string"`
	ExpiryDate string `json:"expiry_date"`
	DaysLeft   int    `json:"days_left"`
}

func registerPrescriptionRoutes(srv *webserver.Server) {
	srv.ApiPUT("/medicines/:id/prescription", putPrescription)
	srv.ApiGET("/medicines/:id/prescription", getPrescription)
}

func putPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid medicine ID", nil)
	}
	var payload prescriptionPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse prescription", err.Error())
	}
	appCtx := GetAppContext(c)
	l := appCtx.Ledger()
	date, err := ledger.ParseDate(payload.ExpiryDate, l.Today().Location())
	if err != nil {
		return failLedger(c, err)
	}
	if err := l.SetPrescriptionExpiry(c.Request().Context(), id, date); err != nil {
		return failLedger(c, err)
	}
	return ok(c, prescriptionView{
		MedicineID: id,
		ExpiryDate: common.FormatDate(date),
		DaysLeft:   common.DaysBetween(l.Today(), date),
	})
}

func getPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid medicine ID", nil)
	}
	l := GetAppContext(c).Ledger()
	date, found, err := l.GetPrescriptionExpiry(c.Request().Context(), id)
	if err != nil {
		return failLedger(c, err)
	}
	if !found {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "No prescription recorded", nil)
	}
	return ok(c, prescriptionView{
		MedicineID: id,
		ExpiryDate: common.FormatDate(date),
		DaysLeft:   common.DaysBetween(l.Today(), date),
	})
}
