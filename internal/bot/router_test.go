package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talkincode/medsbot/internal/ledger"
	"github.com/talkincode/medsbot/internal/testutil"
)

const owner = "4915112345678"

var now = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, logFile string) (*Router, *ledger.Ledger) {
	t.Helper()
	db := testutil.OpenDB(t)
	l := ledger.New(db, ledger.WithClock(func() time.Time { return now }))
	testutil.SeedMedicine(t, db, "Aspirin", 1, 0, 14)
	testutil.SeedMedicine(t, db, "Vitamin D", 0.5, 20, 14)
	r := NewRouter(l, Options{
		AllowedUsers: []string{"+" + owner},
		LogFile:      logFile,
		Location:     time.UTC,
	})
	return r, l
}

func send(r *Router, text string) string {
	return r.Handle(context.Background(), Message{ChatID: owner, Name: "Anna", Text: text})
}

func TestRouterRefusesUnknownSender(t *testing.T) {
	r, l := newTestRouter(t, "")
	reply := r.Handle(context.Background(), Message{ChatID: "111", Text: "/start"})
	if reply != accessDenied {
		t.Fatalf("reply = %q, want access denied", reply)
	}
	users, _ := l.ListUsers(context.Background())
	if len(users) != 0 {
		t.Fatalf("refused sender was registered")
	}
}

func TestRouterIgnoresPlainText(t *testing.T) {
	r, _ := newTestRouter(t, "")
	if reply := send(r, "hello there"); reply != "" {
		t.Fatalf("reply = %q, want none", reply)
	}
}

func TestRouterStartRegistersUser(t *testing.T) {
	r, l := newTestRouter(t, "")
	reply := send(r, "/start")
	if !strings.Contains(reply, "Hello, Anna") || !strings.Contains(reply, "/add_purchase") {
		t.Fatalf("unexpected welcome: %q", reply)
	}
	ids, err := l.RecipientIDs(context.Background())
	if err != nil || len(ids) != 1 || ids[0] != owner {
		t.Fatalf("recipients = %v, err = %v", ids, err)
	}
}

func TestRouterAddPurchase(t *testing.T) {
	r, l := newTestRouter(t, "")
	ctx := context.Background()
	meds, _ := l.ListMedicines(ctx)
	aspirin := meds[0]

	reply := send(r, fmt.Sprintf("/add_purchase %d 30", aspirin.ID))
	if !strings.Contains(reply, "Stock now: *30*") || !strings.Contains(reply, "Lasts about: *30* days") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	m, _ := l.GetMedicine(ctx, aspirin.ID)
	if m.CurrentStock != 30 {
		t.Fatalf("stock = %d, want 30", m.CurrentStock)
	}

	tests := []struct {
		text string
		want string
	}{
		{"/add_purchase", "Usage: /add_purchase"},
		{"/add_purchase abc 3", "Invalid medicine id"},
		{fmt.Sprintf("/add_purchase %d 0", aspirin.ID), "Invalid quantity"},
		{fmt.Sprintf("/add_purchase %d many", aspirin.ID), "Invalid quantity"},
		{"/add_purchase 9999 5", "Medicine 9999 not found"},
	}
	for _, tt := range tests {
		if reply := send(r, tt.text); !strings.Contains(reply, tt.want) {
			t.Fatalf("%s: reply = %q, want it to contain %q", tt.text, reply, tt.want)
		}
	}
	m, _ = l.GetMedicine(ctx, aspirin.ID)
	if m.CurrentStock != 30 {
		t.Fatalf("rejected commands changed stock to %d", m.CurrentStock)
	}
}

func TestRouterSetPrescription(t *testing.T) {
	r, l := newTestRouter(t, "")
	ctx := context.Background()
	meds, _ := l.ListMedicines(ctx)
	id := meds[1].ID

	reply := send(r, fmt.Sprintf("/set_prescription %d 31.12.2025", id))
	if !strings.Contains(reply, "valid until *31.12.2025*") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	exp, ok, err := l.GetPrescriptionExpiry(ctx, id)
	if err != nil || !ok || exp.Format("2006-01-02") != "2025-12-31" {
		t.Fatalf("expiry = %v, ok = %v, err = %v", exp, ok, err)
	}

	if reply := send(r, fmt.Sprintf("/set_prescription %d 32.13.2025", id)); !strings.Contains(reply, "Invalid date") {
		t.Fatalf("bad date reply = %q", reply)
	}
}

func TestRouterReadCommands(t *testing.T) {
	r, _ := newTestRouter(t, "")

	meds := send(r, "/meds")
	if !strings.Contains(meds, "*Aspirin*") || !strings.Contains(meds, "Prescription: not set") {
		t.Fatalf("meds = %q", meds)
	}
	status := send(r, "/status")
	if strings.Index(status, "Aspirin") > strings.Index(status, "Vitamin D") {
		t.Fatalf("status not sorted by days left: %q", status)
	}
	report := send(r, "/report")
	if !strings.Contains(report, "Aspirin - 10.03.2025") {
		t.Fatalf("report = %q", report)
	}
	if reply := send(r, "/frobnicate"); !strings.Contains(reply, "Unknown command") {
		t.Fatalf("unknown command reply = %q", reply)
	}
}

func TestRouterLogs(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "medsbot.log")
	var b strings.Builder
	for i := 1; i <= 15; i++ {
		fmt.Fprintf(&b, "line %02d\n", i)
	}
	if err := os.WriteFile(logFile, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	r, _ := newTestRouter(t, logFile)

	reply := send(r, "/logs")
	if !strings.Contains(reply, "line 15") || !strings.Contains(reply, "line 06") || strings.Contains(reply, "line 05") {
		t.Fatalf("logs reply = %q", reply)
	}

	missing, _ := newTestRouter(t, filepath.Join(t.TempDir(), "absent.log"))
	if reply := send(missing, "/logs"); reply != "Log file not found." {
		t.Fatalf("missing log reply = %q", reply)
	}
}
