package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pesa/internal/core"
	"pesa/internal/ledger"
	"pesa/internal/ledger/ledgertest"
)

func TestStoreContract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		s, err := Open(filepath.Join(t.TempDir(), "pesa.bolt"))
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pesa.bolt")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	tx := ledgertest.Tx("QF00000001", 1, 100, core.Airtime{}, time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	if _, err := s.UpsertIfNewer(context.Background(), tx); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Get(context.Background(), "QF00000001")
	if err != nil || got.Amount.Cents != 100 {
		t.Fatalf("Get() after reopen = %+v, %v", got, err)
	}
}
