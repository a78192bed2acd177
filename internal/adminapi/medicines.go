package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/medsbot/internal/domain"
	"github.com/talkincode/medsbot/internal/ledger"
	"github.com/talkincode/medsbot/internal/webserver"
	"github.com/talkincode/medsbot/pkg/common"
)

// medicineView is a medicine with its derived fields.
type medicineView struct {
	domain.Medicine
	DisplayName        string  `json:"display_name"`
	DaysLeft           int     `json:"days_left"`
	PrescriptionExpiry *string `json:"prescription_expiry"`
}

type expiringView struct {
	MedicineID int64  `json:"medicine_id,string"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Date       string `json:"date"`
	DaysLeft   int    `json:"days_left"`
}

func registerMedicineRoutes(srv *webserver.Server) {
	srv.ApiGET("/medicines", listMedicines)
	srv.ApiGET("/medicines/:id", getMedicine)
	srv.ApiGET("/status", getStatus)
	srv.ApiGET("/report", getReport)
}

func newMedicineView(m domain.Medicine, expiry *time.Time) medicineView {
	v := medicineView{
		Medicine:    m,
		DisplayName: m.DisplayName(),
		DaysLeft:    ledger.DaysRemaining(m),
	}
	if expiry != nil {
		s := common.FormatDate(*expiry)
		v.PrescriptionExpiry = &s
	}
	return v
}

func listMedicines(c echo.Context) error {
	l := GetAppContext(c).Ledger()
	ctx := c.Request().Context()
	meds, err := l.ListMedicines(ctx)
	if err != nil {
		return failLedger(c, err)
	}
	expiries, err := l.PrescriptionExpiries(ctx)
	if err != nil {
		return failLedger(c, err)
	}
	rows := make([]medicineView, 0, len(meds))
	for _, m := range meds {
		var expiry *time.Time
		if d, found := expiries[m.ID]; found {
			expiry = &d
		}
		rows = append(rows, newMedicineView(m, expiry))
	}
	return list(c, rows, len(rows))
}

func getMedicine(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid medicine ID", nil)
	}
	l := GetAppContext(c).Ledger()
	ctx := c.Request().Context()
	m, err := l.GetMedicine(ctx, id)
	if err != nil {
		return failLedger(c, err)
	}
	d, found, err := l.GetPrescriptionExpiry(ctx, id)
	if err != nil {
		return failLedger(c, err)
	}
	var expiry *time.Time
	if found {
		expiry = &d
	}
	return ok(c, newMedicineView(m, expiry))
}

// getStatus returns every medicine ordered by days of stock left.
func getStatus(c echo.Context) error {
	lines, err := GetAppContext(c).Ledger().StatusSummary(c.Request().Context())
	if err != nil {
		return failLedger(c, err)
	}
	rows := make([]medicineView, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, newMedicineView(line.Medicine, line.Expiry))
	}
	return list(c, rows, len(rows))
}

// getReport lists stock run-outs and prescription expiries inside the
// horizon. The horizon query parameter overrides the configured one.
func getReport(c echo.Context) error {
	appCtx := GetAppContext(c)
	horizon := appCtx.Config().Reminder.HorizonDays
	if v := c.QueryParam("horizon"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "horizon must be a positive integer", nil)
		}
		horizon = h
	}
	items, err := appCtx.Ledger().ExpiringWithinHorizon(c.Request().Context(), horizon)
	if err != nil {
		return failLedger(c, err)
	}
	rows := make([]expiringView, 0, len(items))
	for _, it := range items {
		rows = append(rows, expiringView{
			MedicineID: it.MedicineID,
			Name:       it.Name,
			Kind:       string(it.Kind),
			Date:       common.FormatDate(it.Date),
			DaysLeft:   it.DaysLeft,
		})
	}
	return list(c, rows, len(rows))
}
