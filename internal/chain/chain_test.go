// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type record struct {
	visited []string
}

func visit(name string) Command[*record] {
	return Func[*record]{
		CommandName: name,
		Fn: func(_ context.Context, r *record) error {
			r.visited = append(r.visited, name)
			return nil
		},
	}
}

func fail(name string, err error) Command[*record] {
	return Func[*record]{
		CommandName: name,
		Fn: func(_ context.Context, r *record) error {
			r.visited = append(r.visited, name)
			return err
		},
	}
}

func TestChainRunsCommandsInOrder(t *testing.T) {
	ch := New[*record]("order", zerolog.Nop())
	ch.Add(visit("first")).Add(visit("second")).Add(visit("third"))

	r := &record{}
	if err := ch.Process(context.Background(), r); err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(r.visited) != len(want) {
		t.Fatalf("visited %v, want %v", r.visited, want)
	}
	for i := range want {
		if r.visited[i] != want[i] {
			t.Errorf("visited[%d] = %s, want %s", i, r.visited[i], want[i])
		}
	}
}

func TestChainFatalErrorStops(t *testing.T) {
	boom := errors.New("boom")
	ch := New[*record]("fatal", zerolog.Nop())
	ch.Add(visit("first")).Add(fail("second", boom)).Add(visit("third"))

	r := &record{}
	err := ch.Process(context.Background(), r)
	if !errors.Is(err, boom) {
		t.Fatalf("Process = %v, want wrapped boom", err)
	}
	if len(r.visited) != 2 {
		t.Errorf("visited %v, want the chain to stop after the failure", r.visited)
	}
}

func TestChainRecoverableErrorContinues(t *testing.T) {
	ch := New[*record]("recoverable", zerolog.Nop())
	ch.Add(fail("first", Recoverable(errors.New("transient")))).Add(visit("second"))

	r := &record{}
	if err := ch.Process(context.Background(), r); err != nil {
		t.Fatalf("Process = %v, want nil after recoverable error", err)
	}
	if len(r.visited) != 2 {
		t.Errorf("visited %v, want both commands to run", r.visited)
	}
}

func TestIsRecoverable(t *testing.T) {
	plain := errors.New("plain")
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", plain, false},
		{"wrapped recoverable", Recoverable(plain), true},
		{"recoverable of nil", Recoverable(nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverable(tt.err); got != tt.want {
				t.Errorf("IsRecoverable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecoverableUnwraps(t *testing.T) {
	inner := errors.New("inner")
	if !errors.Is(Recoverable(inner), inner) {
		t.Error("Recoverable must preserve the wrapped error for errors.Is")
	}
}

func TestChainNesting(t *testing.T) {
	inner := New[*record]("inner", zerolog.Nop())
	inner.Add(visit("inner-a")).Add(visit("inner-b"))

	outer := New[*record]("outer", zerolog.Nop())
	outer.Add(visit("before")).Add(inner).Add(visit("after"))

	r := &record{}
	if err := outer.Process(context.Background(), r); err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []string{"before", "inner-a", "inner-b", "after"}
	for i := range want {
		if r.visited[i] != want[i] {
			t.Fatalf("visited %v, want %v", r.visited, want)
		}
	}
}

func TestChainCommandNames(t *testing.T) {
	ch := New[*record]("names", zerolog.Nop())
	ch.Add(visit("x")).Add(visit("y"))
	names := ch.CommandNames()
	if len(names) != 2 || names[0] != "x" || names[1] != "y" {
		t.Errorf("CommandNames = %v, want [x y]", names)
	}
	if ch.Len() != 2 {
		t.Errorf("Len = %d, want 2", ch.Len())
	}
}
