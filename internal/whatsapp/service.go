package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"github.com/talkincode/medsbot/internal/bot"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

const replyTimeout = 15 * time.Second

// Handler answers an incoming chat message. An empty reply sends nothing.
type Handler interface {
	Handle(ctx context.Context, msg bot.Message) string
}

// Service wraps one whatsmeow client: the household's linked device.
type Service struct {
	db      *sql.DB
	store   *sqlstore.Container
	client  *whatsmeow.Client
	handler Handler
	printQR bool

	// QR code captured while pairing. The raw code string can be rendered
	// by the admin frontend.
	qr     string
	qrLock sync.RWMutex

	baseCtx context.Context
	ctxLock sync.RWMutex
}

// New opens the device store at storePath and prepares the client. It does
// not connect.
func New(ctx context.Context, storePath string, printQR bool, handler Handler) (*Service, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", storePath))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp store: %w", err)
	}
	container := sqlstore.NewWithDB(db, "sqlite3", nil)
	if err := container.Upgrade(); err != nil {
		_ = db.Close()
		zap.L().Error("whatsapp: sqlstore.Upgrade failed", zap.Error(err))
		return nil, fmt.Errorf("sqlstore upgrade failed: %w", err)
	}

	devices, err := container.GetAllDevices()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore GetAllDevices failed: %w", err)
	}
	dev := container.NewDevice()
	if len(devices) > 0 {
		dev = devices[0]
	}

	svc := &Service{
		db:      db,
		store:   container,
		client:  whatsmeow.NewClient(dev, nil),
		handler: handler,
		printQR: printQR,
		baseCtx: context.Background(),
	}
	svc.client.AddEventHandler(svc.onEvent)
	return svc, nil
}

// Start connects the client, pairing by QR code when no session is stored,
// and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.ctxLock.Lock()
	s.baseCtx = ctx
	s.ctxLock.Unlock()

	if s.client.Store.ID == nil {
		qrChan, err := s.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("whatsapp qr channel: %w", err)
		}
		go s.consumeQR(qrChan)
		zap.L().Info("whatsapp: no stored session, waiting for QR pairing")
	} else {
		zap.L().Info("whatsapp: starting client", zap.String("jid", s.client.Store.ID.String()))
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("whatsapp connect: %w", err)
	}

	<-ctx.Done()
	zap.L().Info("whatsapp: shutting down client")
	s.client.Disconnect()
	return nil
}

func (s *Service) consumeQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		if item.Event != whatsmeow.QRChannelEventCode {
			zap.L().Info("whatsapp: pairing event", zap.String("event", item.Event))
			s.setQR("")
			continue
		}
		s.setQR(item.Code)
		if s.printQR {
			fmt.Println("Scan this QR code with WhatsApp (Linked devices):")
			qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
		}
	}
}

func (s *Service) setQR(code string) {
	s.qrLock.Lock()
	s.qr = code
	s.qrLock.Unlock()
}

// GetQRCode returns the outstanding pairing code, or "" when paired.
func (s *Service) GetQRCode() string {
	s.qrLock.RLock()
	defer s.qrLock.RUnlock()
	return s.qr
}

// Connected reports whether the client is online and logged in.
func (s *Service) Connected() bool {
	return s.client.IsConnected() && s.client.IsLoggedIn()
}

// JID returns the linked account, or "" before pairing.
func (s *Service) JID() string {
	if s.client.Store.ID == nil {
		return ""
	}
	return s.client.Store.ID.String()
}

// SendText sends a plain text message. recipient is a phone number in
// international format or a full JID such as "4915112345678@s.whatsapp.net".
func (s *Service) SendText(ctx context.Context, recipient string, text string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("whatsapp service not initialized")
	}
	jid, err := ToJID(recipient)
	if err != nil {
		zap.L().Warn("whatsapp: invalid jid", zap.Error(err), zap.String("recipient", recipient))
		return err
	}
	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := s.client.SendMessage(ctx, jid, msg); err != nil {
		zap.L().Warn("whatsapp: send message failed", zap.Error(err), zap.String("jid", jid.String()))
		return err
	}
	zap.L().Debug("whatsapp: message sent", zap.String("jid", jid.String()))
	return nil
}

// Close releases the device store.
func (s *Service) Close() error {
	return s.db.Close()
}

// ToJID turns a phone number or JID string into a user JID.
func ToJID(recipient string) (waTypes.JID, error) {
	recipient = strings.TrimSpace(recipient)
	if strings.Contains(recipient, "@") {
		return waTypes.ParseJID(recipient)
	}
	phone := strings.TrimPrefix(recipient, "+")
	if phone == "" {
		return waTypes.JID{}, fmt.Errorf("empty recipient")
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return waTypes.JID{}, fmt.Errorf("invalid phone number %q", recipient)
		}
	}
	return waTypes.NewJID(phone, waTypes.DefaultUserServer), nil
}

// incomingFromEvent extracts a direct text message. Own messages, group
// chats and non-text messages are skipped.
func incomingFromEvent(evt *events.Message) (bot.Message, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return bot.Message{}, false
	}
	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	if strings.TrimSpace(text) == "" {
		return bot.Message{}, false
	}
	return bot.Message{
		ChatID: evt.Info.Sender.User,
		Name:   evt.Info.PushName,
		Text:   text,
	}, true
}

func (s *Service) onEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Message:
		msg, ok := incomingFromEvent(e)
		if !ok || s.handler == nil {
			return
		}
		chat := e.Info.Chat
		// whatsmeow delivers events synchronously; answer off the event loop
		go s.reply(chat, msg)
	case *events.PairSuccess:
		s.setQR("")
		zap.L().Info("whatsapp: paired", zap.String("jid", e.ID.String()))
	case *events.Connected:
		zap.L().Info("whatsapp: connected")
	case *events.LoggedOut:
		zap.L().Warn("whatsapp: logged out, pairing required on next start", zap.String("reason", e.Reason.String()))
	case *events.Disconnected:
		zap.L().Warn("whatsapp: disconnected")
	}
}

func (s *Service) reply(chat waTypes.JID, msg bot.Message) {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error("whatsapp: handler panic:", err)
		}
	}()
	s.ctxLock.RLock()
	base := s.baseCtx
	s.ctxLock.RUnlock()

	ctx, cancel := context.WithTimeout(base, replyTimeout)
	defer cancel()
	answer := s.handler.Handle(ctx, msg)
	if answer == "" {
		return
	}
	if err := s.SendText(ctx, chat.String(), answer); err != nil {
		zap.L().Error("whatsapp: reply failed", zap.String("chat_id", msg.ChatID), zap.Error(err))
	}
}
