package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubConnUpsertsAndSelects(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	upsert := "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload"
	for _, payload := range []string{"{}", `{"a":1}`} {
		if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "users"}, {Value: []byte(payload)}}); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	if rows := conn.Rows("state"); len(rows) != 1 {
		t.Fatalf("expected upsert to replace row, got %v", rows)
	}

	rows, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("next: %v", err)
	}
	if dest[0] != "users" || string(dest[1].([]byte)) != `{"a":1}` {
		t.Fatalf("unexpected row %v", dest)
	}
}

func TestStubConnFailureToggles(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing = true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailBegin = true
	if _, err := conn.BeginTx(ctx, driver.TxOptions{}); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailQuery = true
	if _, err := conn.QueryContext(ctx, "SELECT bucket FROM state", nil); err == nil {
		t.Fatalf("expected query failure")
	}
	if _, err := conn.QueryContext(context.Background(), "DROP TABLE state", nil); err == nil {
		t.Fatalf("expected parse or query failure")
	}
}
