package memory

import (
	"testing"

	"pesa/internal/ledger"
	"pesa/internal/ledger/ledgertest"
)

func TestStoreContract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return New() })
}
