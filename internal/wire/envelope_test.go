package wire

import (
	"encoding/json"
	"testing"
)

func TestNewCommand(t *testing.T) {
	env, err := NewCommand("corr-1", CommandSend, SendCommand{
		ConversationID: "c1",
		ClientMsgID:    "m1",
		Body:           "hello",
	})
	if err != nil {
		t.Fatalf("NewCommand() error = %v", err)
	}
	if env.Type != TypeCommand {
		t.Errorf("Type = %q, want %q", env.Type, TypeCommand)
	}
	if env.ID != "corr-1" {
		t.Errorf("ID = %q, want corr-1", env.ID)
	}
	if env.Kind != CommandSend {
		t.Errorf("Kind = %q, want %q", env.Kind, CommandSend)
	}

	var cmd SendCommand
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Body != "hello" || cmd.ConversationID != "c1" {
		t.Errorf("payload = %+v", cmd)
	}
}

func TestDecodePayload(t *testing.T) {
	raw := `{"type":"event","topic":"message_new","payload":{"conversation_id":"c1","message_id":"m1","sender_id":"u1","body":"hola","timestamp_ms":1700000000000}}`

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatal(err)
	}
	if env.Topic != TopicMessageNew {
		t.Fatalf("topic = %q, want %q", env.Topic, TopicMessageNew)
	}

	var msg MessageEvent
	if err := env.DecodePayload(&msg); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if msg.Body != "hola" || msg.SenderID != "u1" {
		t.Errorf("payload = %+v", msg)
	}
}

func TestDecodePayloadMalformed(t *testing.T) {
	env := Envelope{Topic: TopicTypingStart, Payload: json.RawMessage(`{"user_id":`)}
	var typing TypingEvent
	if err := env.DecodePayload(&typing); err == nil {
		t.Error("DecodePayload() expected error for malformed payload")
	}
}
