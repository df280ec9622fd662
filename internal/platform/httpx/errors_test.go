package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marco-erp/ledger/internal/shared"
)

func TestRespondErrorMapsSharedSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("load entry: %w", shared.ErrConcurrencyConflict), http.StatusConflict},
		{shared.ErrResourceContention, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, nil, tc.err)
		require.Equal(t, tc.status, rec.Code, "error %v", tc.err)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, nil, errors.New("dial tcp 10.0.0.4:5432: refused"))
	require.NotContains(t, rec.Body.String(), "5432")
}
