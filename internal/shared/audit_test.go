package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditColumnsNeverNil(t *testing.T) {
	require.NotNil(t, AuditLog{}.columns())
	require.Empty(t, AuditLog{}.columns())

	named := AuditLog{ChangedColumns: []string{"status", "version"}}
	require.Equal(t, []string{"status", "version"}, named.columns())
}
