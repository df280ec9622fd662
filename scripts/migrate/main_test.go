package main

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func statementFor(t *testing.T, table string) string {
	t.Helper()
	for _, stmt := range statements {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			return stmt
		}
	}
	t.Fatalf("no CREATE TABLE statement for %s", table)
	return ""
}

// Movements bind the acting user's numeric id. A text column here makes pgx
// refuse the insert.
func TestMovementCreatedByIsBigint(t *testing.T) {
	ddl := statementFor(t, "inventory_movements")
	require.Regexp(t, regexp.MustCompile(`created_by\s+BIGINT`), ddl)
}

func TestFiscalYearStatusesCoverCancelled(t *testing.T) {
	ddl := statementFor(t, "fiscal_years")
	require.Contains(t, ddl, "'CANCELLED'", "lookups skip cancelled years, so the column must admit the value")
}

func TestAuditChangedColumnsHasDefault(t *testing.T) {
	ddl := statementFor(t, "audit_logs")
	require.Regexp(t, regexp.MustCompile(`changed_columns\s+TEXT\[\] NOT NULL DEFAULT '\{\}'`), ddl)
}
