package database

import (
	"context"
	"testing"
)

func TestQuoteIdentifier(t *testing.T) {
	cases := map[string]string{
		"chat_relay": `"chat_relay"`,
		`we"ird`:     `"we""ird"`,
	}
	for in, want := range cases {
		if got := quoteIdentifier(in); got != want {
			t.Errorf("quoteIdentifier(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestMaintenanceTarget(t *testing.T) {
	tests := []struct {
		dsn       string
		wantAdmin string
		wantName  string
		wantOK    bool
	}{
		{dsn: "host=localhost user=postgres dbname=chat_relay"},
		{dsn: "postgres://postgres@localhost:5432/postgres"},
		{dsn: "postgres://postgres@localhost:5432/"},
		{
			dsn:       "postgres://relay:secret@db:5432/chat_relay?sslmode=disable",
			wantAdmin: "postgres://relay:secret@db:5432/postgres?sslmode=disable",
			wantName:  "chat_relay",
			wantOK:    true,
		},
	}
	for _, tt := range tests {
		admin, name, ok := maintenanceTarget(tt.dsn)
		if ok != tt.wantOK || admin != tt.wantAdmin || name != tt.wantName {
			t.Errorf("maintenanceTarget(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.dsn, admin, name, ok, tt.wantAdmin, tt.wantName, tt.wantOK)
		}
	}
}

func TestEnsureDatabaseExistsSkipsNonURLDSN(t *testing.T) {
	if err := ensureDatabaseExists(context.Background(), "host=localhost dbname=chat_relay"); err != nil {
		t.Fatalf("ensureDatabaseExists() = %v, want nil", err)
	}
}

func TestConnectRejectsEmptyDSN(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}); err == nil {
		t.Fatal("Connect() with empty DSN returned nil error")
	}
}
