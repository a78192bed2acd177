// Package bot turns chat messages into ledger calls and renders the replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talkincode/medsbot/internal/domain"
	"github.com/talkincode/medsbot/internal/ledger"
	"go.uber.org/zap"
)

const accessDenied = "❌ Access denied. You are not allowed to use this bot."

// Ledger is what the chat commands need from the inventory.
type Ledger interface {
	GetOrCreateUser(ctx context.Context, chatID, firstName string) (domain.User, error)
	ListMedicines(ctx context.Context) ([]domain.Medicine, error)
	GetMedicine(ctx context.Context, id int64) (domain.Medicine, error)
	PrescriptionExpiries(ctx context.Context) (map[int64]time.Time, error)
	StatusSummary(ctx context.Context) ([]ledger.StatusLine, error)
	ExpiringWithinHorizon(ctx context.Context, horizonDays int) ([]ledger.ExpiringItem, error)
	ApplyAdjustment(ctx context.Context, medicineID int64, delta int) (int, error)
	SetPrescriptionExpiry(ctx context.Context, medicineID int64, date time.Time) error
}

// Message is an incoming chat text.
type Message struct {
	ChatID string
	Name   string
	Text   string
}

type Options struct {
	AllowedUsers []string
	LogFile      string
	Location     *time.Location
	HorizonDays  int
}

type handlerFunc func(ctx context.Context, msg Message, args []string) string

// Router dispatches slash commands. Senders outside the allow-list get a
// refusal and nothing else.
type Router struct {
	ledger   Ledger
	allowed  map[string]struct{}
	logFile  string
	loc      *time.Location
	horizon  int
	handlers map[string]handlerFunc
}

func NewRouter(l Ledger, opts Options) *Router {
	r := &Router{
		ledger:  l,
		allowed: make(map[string]struct{}, len(opts.AllowedUsers)),
		logFile: opts.LogFile,
		loc:     opts.Location,
		horizon: opts.HorizonDays,
	}
	if r.loc == nil {
		r.loc = time.Local
	}
	if r.horizon <= 0 {
		r.horizon = ledger.DefaultHorizonDays
	}
	for _, id := range opts.AllowedUsers {
		if id = normalizeID(id); id != "" {
			r.allowed[id] = struct{}{}
		}
	}
	if len(r.allowed) == 0 {
		zap.L().Warn("bot allow-list is empty, every chat user will be refused")
	}
	r.handlers = map[string]handlerFunc{
		"start":            r.handleStart,
		"help":             r.handleHelp,
		"meds":             r.handleMeds,
		"medicines":        r.handleMeds,
		"status":           r.handleStatus,
		"report":           r.handleReport,
		"add_purchase":     r.handleAddPurchase,
		"set_prescription": r.handleSetPrescription,
		"logs":             r.handleLogs,
	}
	return r
}

func normalizeID(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), "+")
}

// Allowed reports whether chatID is on the allow-list.
func (r *Router) Allowed(chatID string) bool {
	_, ok := r.allowed[normalizeID(chatID)]
	return ok
}

// Handle returns the reply for msg. An empty reply means nothing is sent.
func (r *Router) Handle(ctx context.Context, msg Message) string {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	if !r.Allowed(msg.ChatID) {
		zap.L().Warn("access denied", zap.String("chat_id", msg.ChatID))
		return accessDenied
	}
	fields := strings.Fields(text)
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	h, ok := r.handlers[cmd]
	if !ok {
		return fmt.Sprintf("🤔 Unknown command /%s. Send /help for the list.", cmd)
	}
	zap.L().Debug("bot command", zap.String("chat_id", msg.ChatID), zap.String("command", cmd))
	return h(ctx, msg, fields[1:])
}

// errorReply renders a ledger error for the user. Storage failures are
// logged and hidden behind a generic message.
func (r *Router) errorReply(op string, err error, usage string) string {
	var ve *ledger.ValidationError
	var nf *ledger.NotFoundError
	switch {
	case errors.As(err, &ve):
		if usage != "" {
			return fmt.Sprintf("❌ Invalid %s: %s.\nUsage: %s", ve.Field, ve.Reason, usage)
		}
		return fmt.Sprintf("❌ Invalid %s: %s.", ve.Field, ve.Reason)
	case errors.As(err, &nf):
		return fmt.Sprintf("❌ Medicine %d not found. Send /meds to see the ids.", nf.ID)
	default:
		zap.L().Error("bot command failed", zap.String("op", op), zap.Error(err))
		return "❌ Something went wrong, please try again later."
	}
}

func (r *Router) handleStart(ctx context.Context, msg Message, _ []string) string {
	if _, err := r.ledger.GetOrCreateUser(ctx, msg.ChatID, msg.Name); err != nil {
		return r.errorReply("start", err, "")
	}
	return renderWelcome(msg.Name)
}

func (r *Router) handleHelp(context.Context, Message, []string) string {
	return helpText
}

func (r *Router) handleMeds(ctx context.Context, _ Message, _ []string) string {
	meds, err := r.ledger.ListMedicines(ctx)
	if err != nil {
		return r.errorReply("meds", err, "")
	}
	expiries, err := r.ledger.PrescriptionExpiries(ctx)
	if err != nil {
		return r.errorReply("meds", err, "")
	}
	return renderMedicines(meds, expiries)
}

func (r *Router) handleStatus(ctx context.Context, _ Message, _ []string) string {
	lines, err := r.ledger.StatusSummary(ctx)
	if err != nil {
		return r.errorReply("status", err, "")
	}
	return renderStatus(lines)
}

func (r *Router) handleReport(ctx context.Context, _ Message, _ []string) string {
	items, err := r.ledger.ExpiringWithinHorizon(ctx, r.horizon)
	if err != nil {
		return r.errorReply("report", err, "")
	}
	return renderReport(items, r.horizon)
}

const (
	addPurchaseUsage     = "/add_purchase <id> <qty>"
	setPrescriptionUsage = "/set_prescription <id> <DD.MM.YYYY>"
	medicineIDReason     = "must be a number from /meds"
)

func parseMedicineID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, &ledger.ValidationError{Field: "medicine id", Reason: medicineIDReason}
	}
	return id, nil
}

func (r *Router) handleAddPurchase(ctx context.Context, _ Message, args []string) string {
	if len(args) < 2 {
		return "💊 Send the medicine id and quantity.\nUsage: " + addPurchaseUsage + "\nSend /meds to see the ids."
	}
	id, err := parseMedicineID(args[0])
	if err != nil {
		return r.errorReply("add_purchase", err, addPurchaseUsage)
	}
	qty, err := ledger.ParseQuantity(args[1])
	if err != nil {
		return r.errorReply("add_purchase", err, addPurchaseUsage)
	}
	m, err := r.ledger.GetMedicine(ctx, id)
	if err != nil {
		return r.errorReply("add_purchase", err, addPurchaseUsage)
	}
	stock, err := r.ledger.ApplyAdjustment(ctx, id, qty)
	if err != nil {
		return r.errorReply("add_purchase", err, addPurchaseUsage)
	}
	return renderPurchase(m, qty, stock)
}

func (r *Router) handleSetPrescription(ctx context.Context, _ Message, args []string) string {
	if len(args) < 2 {
		return "📝 Send the medicine id and expiry date.\nUsage: " + setPrescriptionUsage + "\nSend /meds to see the ids."
	}
	id, err := parseMedicineID(args[0])
	if err != nil {
		return r.errorReply("set_prescription", err, setPrescriptionUsage)
	}
	date, err := ledger.ParseDate(strings.Join(args[1:], " "), r.loc)
	if err != nil {
		return r.errorReply("set_prescription", err, setPrescriptionUsage)
	}
	m, err := r.ledger.GetMedicine(ctx, id)
	if err != nil {
		return r.errorReply("set_prescription", err, setPrescriptionUsage)
	}
	if err := r.ledger.SetPrescriptionExpiry(ctx, id, date); err != nil {
		return r.errorReply("set_prescription", err, setPrescriptionUsage)
	}
	return renderPrescription(m, date)
}

func (r *Router) handleLogs(context.Context, Message, []string) string {
	if r.logFile == "" {
		return "Log file is not configured."
	}
	lines, err := tailFile(r.logFile, logTailLines)
	if errors.Is(err, os.ErrNotExist) {
		return "Log file not found."
	}
	if err != nil {
		zap.L().Error("read log file", zap.String("file", r.logFile), zap.Error(err))
		return "❌ Could not read the log file."
	}
	if len(lines) == 0 {
		return "The log is empty."
	}
	return "🧾 *Last log lines*\n```\n" + truncateRunes(strings.Join(lines, "\n"), maxReplyRunes) + "\n```"
}
