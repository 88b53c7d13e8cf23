package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/guildworks/guildworks-backend/pkg/migrate"
)

func TestTreasuryMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_treasury.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no treasury migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS treasury",
		"CHECK (id = 1)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_bonus_runs_trigger_balance ON bonus_runs(trigger_balance_cents)",
		"CHECK (percent_bps >= 0 AND percent_bps <= 10000)",
		"DROP TABLE IF EXISTS treasury",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestBidsMigrationEnforcesSingleAcceptedPerSlot(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_opportunities.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no opportunities migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_role_bids_accepted_slot",
		"WHERE status = 'accepted'",
		"DROP TABLE IF EXISTS role_bids",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir invalid: %v", err)
	}
}
