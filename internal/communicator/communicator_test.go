// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package communicator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type collectingHandler struct {
	mu       sync.Mutex
	msgType  string
	received []CommunicationMessage
	fail     error
}

func (h *collectingHandler) MessageType() string { return h.msgType }

func (h *collectingHandler) HandleMessage(_ context.Context, msg CommunicationMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, msg)
	return h.fail
}

func (h *collectingHandler) messages() []CommunicationMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]CommunicationMessage, len(h.received))
	copy(out, h.received)
	return out
}

func drain(t *testing.T, c Communicator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestCommunicatorDeliversToHandler(t *testing.T) {
	c := NewVirtualCommunicator(zerolog.Nop())
	h := &collectingHandler{msgType: TypeLearning}
	if err := c.RegisterMessageHandler(h); err != nil {
		t.Fatalf("RegisterMessageHandler: %v", err)
	}
	if err := c.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	want := &LearningMessage{UserGlobalID: "alice", MessageGlobalID: "m1", Trigger: "threshold"}
	if err := c.Deliver(want); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	drain(t, c)

	got := h.messages()
	if len(got) != 1 {
		t.Fatalf("received %d messages, want 1", len(got))
	}
	lm, ok := got[0].(*LearningMessage)
	if !ok {
		t.Fatalf("received %T, want *LearningMessage", got[0])
	}
	if lm.UserGlobalID != "alice" || lm.MessageGlobalID != "m1" || lm.Trigger != "threshold" {
		t.Errorf("received %+v, want %+v", lm, want)
	}
	if c.HasErrors() {
		t.Error("HasErrors = true after clean delivery")
	}
}

func TestCommunicatorPerTypeOrdering(t *testing.T) {
	c := NewVirtualCommunicator(zerolog.Nop())
	h := &collectingHandler{msgType: TypeLearning}
	if err := c.RegisterMessageHandler(h); err != nil {
		t.Fatalf("RegisterMessageHandler: %v", err)
	}
	if err := c.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	const n = 50
	for i := 0; i < n; i++ {
		msg := &LearningMessage{UserGlobalID: "alice", MessageGlobalID: string(rune('a' + i%26)), Trigger: ""}
		msg.Trigger = time.Duration(i).String() // distinct payloads in order
		if err := c.Deliver(msg); err != nil {
			t.Fatalf("Deliver %d: %v", i, err)
		}
	}
	drain(t, c)

	got := h.messages()
	if len(got) != n {
		t.Fatalf("received %d, want %d", len(got), n)
	}
	for i, m := range got {
		if m.(*LearningMessage).Trigger != time.Duration(i).String() {
			t.Fatalf("message %d arrived out of order: %+v", i, m)
		}
	}
}

func TestCommunicatorLifecycle(t *testing.T) {
	c := NewVirtualCommunicator(zerolog.Nop())
	h := &collectingHandler{msgType: TypeLearning}

	t.Run("deliver before open fails", func(t *testing.T) {
		if err := c.Deliver(&LearningMessage{}); !errors.Is(err, ErrNotOpen) {
			t.Errorf("Deliver = %v, want ErrNotOpen", err)
		}
	})

	t.Run("duplicate handler rejected", func(t *testing.T) {
		if err := c.RegisterMessageHandler(h); err != nil {
			t.Fatalf("first register: %v", err)
		}
		err := c.RegisterMessageHandler(&collectingHandler{msgType: TypeLearning})
		if !errors.Is(err, ErrDuplicateHandler) {
			t.Errorf("second register = %v, want ErrDuplicateHandler", err)
		}
	})

	t.Run("unhandled type rejected", func(t *testing.T) {
		if err := c.Open(); err != nil {
			t.Fatalf("Open: %v", err)
		}
		err := c.Deliver(&AdaptationMessage{})
		if !errors.Is(err, ErrUnhandledType) {
			t.Errorf("Deliver = %v, want ErrUnhandledType", err)
		}
	})

	t.Run("register after open fails", func(t *testing.T) {
		if err := c.RegisterMessageHandler(&collectingHandler{msgType: TypeAdaptation}); err == nil {
			t.Error("register after Open must fail")
		}
	})

	t.Run("close then open fails", func(t *testing.T) {
		if err := c.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := c.Open(); !errors.Is(err, ErrClosed) {
			t.Errorf("Open after Close = %v, want ErrClosed", err)
		}
	})
}

func TestCommunicatorHandlerErrorSetsFlag(t *testing.T) {
	c := NewVirtualCommunicator(zerolog.Nop())
	h := &collectingHandler{msgType: TypeLearning, fail: errors.New("handler broke")}
	if err := c.RegisterMessageHandler(h); err != nil {
		t.Fatalf("RegisterMessageHandler: %v", err)
	}
	if err := c.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	if err := c.Deliver(&LearningMessage{UserGlobalID: "alice", MessageGlobalID: "m1"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	drain(t, c)

	if !c.HasErrors() {
		t.Error("HasErrors = false after a handler failure")
	}
	c.ResetErrors()
	if c.HasErrors() {
		t.Error("HasErrors = true after ResetErrors")
	}
}

func TestMessageCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  CommunicationMessage
	}{
		{"learning", &LearningMessage{UserGlobalID: "u", MessageGlobalID: "m", Trigger: "observation"}},
		{"adaptation", &AdaptationMessage{UserGlobalID: "u", MessageGlobalID: "m", ContentMatch: 0.8, Score: 0.9}},
		{"score request", &ScoreRequestMessage{MessageGlobalID: "m", TargetUserGlobalIDs: []string{"a", "b"}, LearnOnly: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := encode(tt.msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := decode(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Type() != tt.msg.Type() {
				t.Errorf("Type = %s, want %s", got.Type(), tt.msg.Type())
			}
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := decode([]byte(`{"type":"bogus","payload":{}}`)); err == nil {
		t.Error("decode of unknown type must fail")
	}
}
