package whatsapp

import (
	"testing"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func TestToJID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"4915112345678", "4915112345678@s.whatsapp.net", false},
		{" +4915112345678 ", "4915112345678@s.whatsapp.net", false},
		{"4915112345678@s.whatsapp.net", "4915112345678@s.whatsapp.net", false},
		{"", "", true},
		{"call me", "", true},
	}
	for _, tt := range tests {
		got, err := ToJID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ToJID(%q) = %s, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ToJID(%q): %v", tt.in, err)
		}
		if got.String() != tt.want {
			t.Fatalf("ToJID(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func messageEvent(text string, mutate func(*events.Message)) *events.Message {
	sender := waTypes.NewJID("4915112345678", waTypes.DefaultUserServer)
	evt := &events.Message{
		Info: waTypes.MessageInfo{
			MessageSource: waTypes.MessageSource{Chat: sender, Sender: sender},
			PushName:      "Anna",
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
	if mutate != nil {
		mutate(evt)
	}
	return evt
}

func TestIncomingFromEvent(t *testing.T) {
	msg, ok := incomingFromEvent(messageEvent("/status", nil))
	if !ok {
		t.Fatalf("direct text message was skipped")
	}
	if msg.ChatID != "4915112345678" || msg.Name != "Anna" || msg.Text != "/status" {
		t.Fatalf("message = %+v", msg)
	}

	extended := messageEvent("", func(e *events.Message) {
		e.Message = &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("/report")}}
	})
	if msg, ok := incomingFromEvent(extended); !ok || msg.Text != "/report" {
		t.Fatalf("extended text: ok=%v msg=%+v", ok, msg)
	}

	skipped := map[string]*events.Message{
		"from me": messageEvent("/status", func(e *events.Message) { e.Info.IsFromMe = true }),
		"group":   messageEvent("/status", func(e *events.Message) { e.Info.IsGroup = true }),
		"empty":   messageEvent("   ", nil),
		"no body": messageEvent("", func(e *events.Message) { e.Message = nil }),
	}
	for name, evt := range skipped {
		if _, ok := incomingFromEvent(evt); ok {
			t.Fatalf("%s: message should be skipped", name)
		}
	}
}
