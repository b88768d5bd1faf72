// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package chain implements the ordered command pipeline executor used by the
// scorer and the information-extraction path.
//
// A chain runs its commands in registration order against one shared context
// value. A command signals one of three outcomes through its error return:
//
//   - nil: success, the chain continues.
//   - a recoverable error (wrapped via Recoverable): logged, the chain
//     continues with the next command.
//   - any other error: fatal, the chain aborts and the error propagates to
//     the caller.
//
// Chains nest: a *Chain is itself a Command, so a per-user sub-chain can run
// inside the per-message chain. Running a chain twice over an unchanged
// context is idempotent only for pure commands; commands with side effects
// (storage writes, learner invocation) belong on the primary chain only, and
// callers use the separate re-score chain for idempotent re-evaluation.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Command is one stage of a chain. Name identifies the stage in logs and
// errors; Process mutates the shared context.
type Command[T any] interface {
	Name() string
	Process(ctx context.Context, c T) error
}

// recoverableError marks failures the chain logs and skips.
type recoverableError struct {
	err error
}

func (e *recoverableError) Error() string { return e.err.Error() }
func (e *recoverableError) Unwrap() error { return e.err }

// Recoverable wraps err so that a chain logs it and continues with the next
// command instead of aborting.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &recoverableError{err: err}
}

// IsRecoverable reports whether err was wrapped via Recoverable.
func IsRecoverable(err error) bool {
	var r *recoverableError
	return errors.As(err, &r)
}

// Chain is an ordered sequence of commands sharing one context type. A Chain
// implements Command, so chains nest.
type Chain[T any] struct {
	name     string
	commands []Command[T]
	logger   zerolog.Logger
}

// New creates an empty chain.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New[T any](name string, logger zerolog.Logger) *Chain[T] {
	return &Chain[T]{
		name:   name,
		logger: logger.With().Str("chain", name).Logger(),
	}
}

// Add appends a command and returns the chain for fluent assembly.
func (ch *Chain[T]) Add(cmd Command[T]) *Chain[T] {
	ch.commands = append(ch.commands, cmd)
	return ch
}

// Name returns the chain identifier.
func (ch *Chain[T]) Name() string { return ch.name }

// Len returns the number of registered commands.
func (ch *Chain[T]) Len() int { return len(ch.commands) }

// CommandNames returns the registered command names in execution order. The
// topology is data: tests and diagnostics inspect it directly.
func (ch *Chain[T]) CommandNames() []string {
	names := make([]string, len(ch.commands))
	for i, cmd := range ch.commands {
		names[i] = cmd.Name()
	}
	return names
}

// Process runs every command in order. Recoverable failures are logged and
// skipped; the first fatal failure aborts the chain.
func (ch *Chain[T]) Process(ctx context.Context, c T) error {
	for _, cmd := range ch.commands {
		err := cmd.Process(ctx, c)
		if err == nil {
			continue
		}
		if IsRecoverable(err) {
			ch.logger.Warn().
				Str("command", cmd.Name()).
				Err(err).
				Msg("command failed, continuing chain")
			continue
		}
		return fmt.Errorf("chain %s: command %s: %w", ch.name, cmd.Name(), err)
	}
	return nil
}

// Func adapts a function to a Command.
type Func[T any] struct {
	CommandName string
	Fn          func(ctx context.Context, c T) error
}

// Name returns the command identifier.
func (f Func[T]) Name() string { return f.CommandName }

// Process invokes the wrapped function.
func (f Func[T]) Process(ctx context.Context, c T) error { return f.Fn(ctx, c) }
