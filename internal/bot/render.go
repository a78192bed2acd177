package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/talkincode/medsbot/internal/domain"
	"github.com/talkincode/medsbot/internal/ledger"
	"github.com/talkincode/medsbot/pkg/common"
)

const helpText = `📋 *What I do*
• track medicine stock
• track prescription expiry dates
• remind you a month before a prescription expires
• remind you before a medicine runs out

📝 *Commands*
/meds - list medicines with their ids
/status - supply summary, shortest first
/report - what runs out within a month
/add_purchase <id> <qty> - record a purchase (negative qty corrects stock)
/set_prescription <id> <DD.MM.YYYY> - set prescription expiry
/logs - last log lines
/help - this message`

func renderWelcome(name string) string {
	if name == "" {
		return "👋 Hello! I keep track of the household medicines.\n\n" + helpText
	}
	return fmt.Sprintf("👋 Hello, %s! I keep track of the household medicines.\n\n%s", name, helpText)
}

func formatDose(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

func writeMedicine(b *strings.Builder, m domain.Medicine, days int, expiry *time.Time) {
	fmt.Fprintf(b, "  Daily dose: %s\n", formatDose(m.DailyDose))
	fmt.Fprintf(b, "  Stock: %d units\n", m.CurrentStock)
	fmt.Fprintf(b, "  Lasts about: %d days\n", days)
	if expiry != nil {
		fmt.Fprintf(b, "  Prescription until: %s\n", expiry.Format(common.DisplayDateLayout))
	} else {
		b.WriteString("  Prescription: not set\n")
	}
}

func renderMedicines(meds []domain.Medicine, expiries map[int64]time.Time) string {
	if len(meds) == 0 {
		return "📦 The medicine list is empty."
	}
	var b strings.Builder
	b.WriteString("💊 *Medicines*\n\n")
	for _, m := range meds {
		fmt.Fprintf(&b, "%d. *%s*\n", m.ID, m.DisplayName())
		var exp *time.Time
		if e, ok := expiries[m.ID]; ok {
			exp = &e
		}
		writeMedicine(&b, m, ledger.DaysRemaining(m), exp)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderStatus(lines []ledger.StatusLine) string {
	if len(lines) == 0 {
		return "📦 No medicine data yet."
	}
	var b strings.Builder
	b.WriteString("📊 *Supply summary*\n\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "💊 *%s*\n", l.Medicine.DisplayName())
		writeMedicine(&b, l.Medicine, l.DaysLeft, l.Expiry)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderReport(items []ledger.ExpiringItem, horizonDays int) string {
	if len(items) == 0 {
		return fmt.Sprintf("✅ Nothing runs out within %d days.", horizonDays)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📅 *Runs out within %d days*\n\n", horizonDays)
	for _, it := range items {
		icon := "💊"
		if it.Kind == ledger.KindPrescription {
			icon = "📝"
		}
		fmt.Fprintf(&b, "%s %s - %s\n", icon, it.Name, it.Date.Format(common.DisplayDateLayout))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderPurchase(m domain.Medicine, delta, stock int) string {
	m.CurrentStock = stock
	verb := "Added"
	if delta < 0 {
		verb = "Corrected by"
	}
	return fmt.Sprintf("✅ Purchase recorded!\n\nMedicine: *%s*\n%s: *%d* units\nStock now: *%d* units\nLasts about: *%d* days",
		m.DisplayName(), verb, delta, stock, ledger.DaysRemaining(m))
}

func renderPrescription(m domain.Medicine, expiry time.Time) string {
	return fmt.Sprintf("✅ Prescription for *%s* is valid until *%s*.",
		m.DisplayName(), expiry.Format(common.DisplayDateLayout))
}
