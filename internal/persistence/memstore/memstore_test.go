// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package memstore

import (
	"testing"

	"github.com/spektrumprojekt/spektrum-sub000/internal/persistence/storetest"
)

func TestMemStoreContract(t *testing.T) {
	storetest.Run(t, New())
}
