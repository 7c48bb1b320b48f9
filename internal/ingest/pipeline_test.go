package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"pesa/internal/clues"
	"pesa/internal/core"
	"pesa/internal/inbox/memory"
	"pesa/internal/ledger"
	ledgermem "pesa/internal/ledger/memory"
	"pesa/internal/log"
	"pesa/internal/parser"
)

const (
	sendMsg    = "QK87ABCD12 Confirmed. Ksh1,000.00 sent to JOHN DOE 0712345678 on 21/1/26 at 10:00 AM. New M-PESA balance is Ksh500.00."
	paybillMsg = "QL11PAYB03 Confirmed. Ksh300.00 paid to Paybill 400200, account number 12345 on 3/2/26 at 7:00 PM New M-PESA balance is Ksh200.00."
	naivasMsg  = "QM22TILL03 Confirmed. Ksh450.00 paid to NAIVAS SUPERMARKET. on 6/2/26 at 5:30 PM.New M-PESA balance is Ksh1,100.00."
	uberMsg    = "QM22TILL04 Confirmed. Ksh620.00 paid to UBER BV. on 7/2/26 at 11:30 PM.New M-PESA balance is Ksh480.00."
	otpMsg     = "Your OTP is 482913. Do not share it with anyone."
)

var msgTime = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func newPipeline(t *testing.T, store Store) *Pipeline {
	t.Helper()
	p := New(parser.New(), clues.NewDetector(clues.DefaultTable()), store, Config{Workers: 3, StoreTimeout: time.Second}, log.Discard())
	p.now = func() time.Time { return msgTime.Add(time.Hour) }
	return p
}

func raw(body, id string) core.RawMessage {
	return core.RawMessage{Body: body, Timestamp: msgTime, TransportID: id}
}

func TestIngestSendMoney(t *testing.T) {
	store := ledgermem.New()
	p := newPipeline(t, store)

	outcome, err := p.Ingest(context.Background(), raw(sendMsg, "sms-1"))
	if err != nil || outcome != core.Inserted {
		t.Fatalf("Ingest() = %v, %v; want inserted", outcome, err)
	}
	tx, err := store.Get(context.Background(), "QK87ABCD12")
	if err != nil {
		t.Fatal(err)
	}
	if tx.Kind() != core.KindSendMoney || tx.Amount.Cents != 100000 {
		t.Errorf("stored %+v", tx)
	}
	if d := tx.Details.(core.SendMoney); d.CounterpartyName != "JOHN DOE" || d.CounterpartyPhone != "0712345678" {
		t.Errorf("details = %+v", d)
	}
	if tx.TransportID != "sms-1" || !tx.Timestamp.Equal(msgTime) || tx.IngestedAt.IsZero() {
		t.Errorf("metadata = %q %v %v", tx.TransportID, tx.Timestamp, tx.IngestedAt)
	}
}

func TestIngestPaybillWithoutName(t *testing.T) {
	store := ledgermem.New()
	if _, err := newPipeline(t, store).Ingest(context.Background(), raw(paybillMsg, "sms-2")); err != nil {
		t.Fatal(err)
	}
	tx, _ := store.Get(context.Background(), "QL11PAYB03")
	want := core.Paybill{PaybillNumber: "400200", AccountNumber: "12345", MerchantName: "PAYBILL 400200"}
	if tx.Details != want {
		t.Errorf("details = %+v, want %+v", tx.Details, want)
	}
}

func TestIngestAttachesClues(t *testing.T) {
	store := ledgermem.New()
	if _, err := newPipeline(t, store).Ingest(context.Background(), raw(naivasMsg, "sms-3")); err != nil {
		t.Fatal(err)
	}
	tx, _ := store.Get(context.Background(), "QM22TILL03")
	cat, ok := clues.SuggestCategory(tx.Clues)
	if !ok || cat != "SUPERMARKET" {
		t.Errorf("clues = %v, suggested %q", tx.Clues, cat)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	store := ledgermem.New()
	p := newPipeline(t, store)
	ctx := context.Background()

	if o, _ := p.Ingest(ctx, raw(sendMsg, "sms-1")); o != core.Inserted {
		t.Fatalf("first ingest = %v", o)
	}
	if o, _ := p.Ingest(ctx, raw(sendMsg, "sms-1-dup")); o != core.Skipped {
		t.Fatalf("second ingest = %v, want skipped", o)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestIngestUpgradesParserVersion(t *testing.T) {
	store := ledgermem.New()
	ctx := context.Background()

	old := core.Transaction{
		ReceiptNumber: "QM22TILL03",
		Amount:        core.Money{Cents: 45000},
		Details:       core.Till{MerchantName: "NAIVAS"},
		RawText:       naivasMsg,
		ParserVersion: 1,
		Timestamp:     msgTime,
	}
	if _, err := store.UpsertIfNewer(ctx, old); err != nil {
		t.Fatal(err)
	}

	p := New(parser.NewWithVersion(2), clues.NewDetector(clues.DefaultTable()), store, DefaultConfig(), log.Discard())
	outcome, err := p.Ingest(ctx, raw(naivasMsg, "sms-3"))
	if err != nil || outcome != core.Updated {
		t.Fatalf("Ingest() = %v, %v; want updated", outcome, err)
	}
	tx, _ := store.Get(ctx, "QM22TILL03")
	if tx.ParserVersion != 2 || tx.MerchantName() != "NAIVAS SUPERMARKET" || len(tx.Clues) == 0 {
		t.Errorf("record not re-extracted: %+v", tx)
	}

	stale := New(parser.NewWithVersion(1), clues.NewDetector(clues.DefaultTable()), store, DefaultConfig(), log.Discard())
	if o, _ := stale.Ingest(ctx, raw(naivasMsg, "sms-3")); o != core.Skipped {
		t.Errorf("older parser outcome = %v, want skipped", o)
	}
}

func TestIngestRejections(t *testing.T) {
	store := ledgermem.New()
	p := newPipeline(t, store)
	for _, body := range []string{otpMsg, "", "QK87ABCD12 Confirmed. Ksh0.00 sent to JOHN DOE 0712345678 on 21/1/26 at 10:00 AM."} {
		outcome, err := p.Ingest(context.Background(), raw(body, "x"))
		if err != nil || outcome != core.Rejected {
			t.Errorf("Ingest(%q) = %v, %v; want rejected", body, outcome, err)
		}
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Errorf("rejections wrote %d records", n)
	}
}

func TestIngestStampsUndatedMessages(t *testing.T) {
	store := ledgermem.New()
	p := newPipeline(t, store)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, core.RawMessage{Body: sendMsg}); err != nil {
		t.Fatal(err)
	}
	tx, _ := store.Get(ctx, "QK87ABCD12")
	want := time.Date(2026, 1, 21, 10, 0, 0, 0, time.FixedZone("EAT", 3*60*60))
	if !tx.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want body time %v", tx.Timestamp, want)
	}

	if _, err := p.Ingest(ctx, core.RawMessage{Body: "QN33AIRT01 confirmed.You bought Ksh100.00 of airtime"}); err != nil {
		t.Fatal(err)
	}
	tx, _ = store.Get(ctx, "QN33AIRT01")
	if !tx.Timestamp.Equal(msgTime.Add(time.Hour)) {
		t.Errorf("timestamp = %v, want ingestion time", tx.Timestamp)
	}
}

// failingStore fails every write after the first `allow` calls.
type failingStore struct {
	*ledgermem.Store
	allow int64
	calls atomic.Int64
}

func (s *failingStore) UpsertIfNewer(ctx context.Context, tx core.Transaction) (core.Outcome, error) {
	if s.calls.Add(1) > s.allow {
		return 0, errors.New("disk I/O error")
	}
	return s.Store.UpsertIfNewer(ctx, tx)
}

func TestIngestStorageErrorIsRetryable(t *testing.T) {
	p := newPipeline(t, &failingStore{Store: ledgermem.New()})
	_, err := p.Ingest(context.Background(), raw(sendMsg, "sms-1"))
	if err == nil || !IsRetryable(err) {
		t.Fatalf("Ingest() error = %v, want retryable", err)
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Receipt != "QK87ABCD12" {
		t.Errorf("StorageError = %+v", se)
	}
}

func TestIngestBatchCounts(t *testing.T) {
	store := ledgermem.New()
	p := newPipeline(t, store)
	msgs := []core.RawMessage{
		raw(sendMsg, "1"), raw(paybillMsg, "2"), raw(naivasMsg, "3"),
		raw(sendMsg, "4"), raw(otpMsg, "5"), raw("", "6"),
	}
	res, err := p.IngestBatch(context.Background(), msgs)
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 3 || res.Skipped != 1 || res.Rejected != 2 || res.Updated != 0 {
		t.Errorf("IngestBatch() = %+v", res)
	}
	if res.Total() != len(msgs) {
		t.Errorf("Total() = %d, want %d", res.Total(), len(msgs))
	}
}

func TestIngestBatchStopsOnStorageError(t *testing.T) {
	p := newPipeline(t, &failingStore{Store: ledgermem.New(), allow: 0})
	p.cfg.Workers = 1
	_, err := p.IngestBatch(context.Background(), []core.RawMessage{raw(sendMsg, "1"), raw(paybillMsg, "2")})
	if !IsRetryable(err) {
		t.Fatalf("IngestBatch() error = %v, want retryable", err)
	}
}

func TestIngestBatchCancelled(t *testing.T) {
	p := newPipeline(t, ledgermem.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.IngestBatch(ctx, []core.RawMessage{raw(sendMsg, "1")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("IngestBatch() error = %v, want context.Canceled", err)
	}
	if res.Total() != 0 {
		t.Errorf("processed %d messages after cancel", res.Total())
	}
}

func TestScan(t *testing.T) {
	store := ledgermem.New()
	p := newPipeline(t, store)
	ctx := context.Background()
	now := msgTime.Add(24 * time.Hour)

	if _, err := p.Ingest(ctx, raw(sendMsg, "existing")); err != nil {
		t.Fatal(err)
	}

	src := memory.New(
		raw(sendMsg, "1"),
		raw(paybillMsg, "2"),
		raw(uberMsg, "3"),
		raw(otpMsg, "4"),
		core.RawMessage{Body: naivasMsg, Timestamp: now.AddDate(-1, 0, 0), TransportID: "too-old"},
	)
	res, err := p.Scan(ctx, src, 6, now)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if res.Inserted != 2 || res.Skipped != 1 || res.Rejected != 1 {
		t.Errorf("Scan() counts = %+v", res.BatchResult)
	}
	if len(res.Transactions) != 3 {
		t.Errorf("Scan() returned %d transactions, want 3", len(res.Transactions))
	}
	if !res.Since.Equal(now.AddDate(0, -6, 0)) {
		t.Errorf("Since = %v", res.Since)
	}
}

func TestScanRejectsBadLookback(t *testing.T) {
	p := newPipeline(t, ledgermem.New())
	if _, err := p.Scan(context.Background(), memory.New(), 0, msgTime); !errors.Is(err, ErrInvalidLookback) {
		t.Errorf("Scan() error = %v", err)
	}
}

var _ Store = (ledger.Store)(nil)
