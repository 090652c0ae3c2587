package partitions

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPartitionName(t *testing.T) {
	tests := []struct {
		vaultID string
		want    string
	}{
		{"9f2d4c3a-5e6b-1a7d-8f00-112233445566", "sync_changes_9f2d4c3a_5e6b_1a7d_8f00_112233445566"},
		{"simple", "sync_changes_simple"},
		{"Mixed-Case", "sync_changes_mixed_case"},
		{"odd;drop table--", "sync_changes_odd_drop_table__"},
		{"", "sync_changes_"},
	}
	for _, tt := range tests {
		if got := PartitionName(tt.vaultID); got != tt.want {
			t.Errorf("PartitionName(%q) = %q, want %q", tt.vaultID, got, tt.want)
		}
	}
}

func TestEnsureAll_RepairsEveryVault(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery(`SELECT vault_id FROM vault_keys`).
		WillReturnRows(sqlmock.NewRows([]string{"vault_id"}).AddRow("v-1").AddRow("v-2"))
	mock.ExpectExec(`SELECT create_vault_partition\(\$1\)`).
		WithArgs("v-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT create_vault_partition\(\$1\)`).
		WithArgs("v-2").WillReturnResult(sqlmock.NewResult(0, 0))

	m := NewPostgresManager(db)
	if err := m.EnsureAll(context.Background()); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDropPartition(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`SELECT drop_vault_partition\(\$1\)`).
		WithArgs("v-1").WillReturnResult(sqlmock.NewResult(0, 0))

	m := NewPostgresManager(db)
	if err := m.DropPartition(context.Background(), "v-1"); err != nil {
		t.Fatalf("DropPartition: %v", err)
	}
}
