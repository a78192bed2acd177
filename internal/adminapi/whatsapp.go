package adminapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/medsbot/internal/webserver"
	"go.uber.org/zap"
)

type sendPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func registerWhatsAppRoutes(srv *webserver.Server) {
	srv.ApiGET("/whatsapp/qr", getWhatsAppQR)
	srv.ApiGET("/whatsapp/status", getWhatsAppStatus)
	srv.ApiPOST("/whatsapp/send", postWhatsAppSend)
}

// getWhatsAppQR returns the latest pairing QR code string, empty once the
// device is paired. The client renders the QR itself.
func getWhatsAppQR(c echo.Context) error {
	m := GetAppContext(c).Messenger()
	if m == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	code := m.GetQRCode()
	return ok(c, map[string]interface{}{
		"code":   code,
		"has_qr": code != "",
	})
}

func getWhatsAppStatus(c echo.Context) error {
	m := GetAppContext(c).Messenger()
	if m == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	return ok(c, map[string]interface{}{
		"connected": m.Connected(),
		"jid":       m.JID(),
	})
}

// postWhatsAppSend sends a text message, mainly to test the pairing.
func postWhatsAppSend(c echo.Context) error {
	m := GetAppContext(c).Messenger()
	if m == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	var payload sendPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse message", err.Error())
	}
	payload.To = strings.TrimSpace(payload.To)
	if payload.To == "" || strings.TrimSpace(payload.Text) == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "to and text are required", nil)
	}
	if err := m.SendText(c.Request().Context(), payload.To, payload.Text); err != nil {
		return fail(c, http.StatusBadGateway, "SEND_FAILED", "Failed to send message", err.Error())
	}
	zap.L().Info("adminapi: whatsapp message sent", zap.String("to", payload.To))
	return ok(c, map[string]interface{}{"sent": true})
}
