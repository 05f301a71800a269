package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	host := os.Getenv("TIE_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("TIE_TEST_POSTGRES_HOST not set")
	}
	cfg := config.Default().Postgres
	cfg.Host = host
	client, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	l := NewLedger(client)
	if err := l.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return l
}

func TestLedgerUpsertAndLookup(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()
	key := "ledger-test-" + time.Now().Format(time.RFC3339Nano)

	if err := l.Record(ctx, key, -1, StatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}
	e, err := l.Lookup(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if e.RecordID != -1 || e.Status != StatusFailed || e.Detail != "boom" {
		t.Errorf("entry = %+v", e)
	}

	if err := l.Record(ctx, key, 42, StatusIndexed, ""); err != nil {
		t.Fatal(err)
	}
	e, err = l.Lookup(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if e.RecordID != 42 || e.Status != StatusIndexed {
		t.Errorf("entry after upsert = %+v", e)
	}
}

func TestLedgerLookupMissing(t *testing.T) {
	l := testLedger(t)
	_, err := l.Lookup(context.Background(), "no-such-key")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
