package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"liquidityreward/pkg/settlement"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementSummary(t *testing.T) {
	assert.Equal(t, "3/3 payouts completed for 0xglo @ 42220.",
		SettlementSummary(settlement.Result{Completed: 3, Total: 3}, PayoutLabel("0xglo", 42220)))
	assert.Equal(t, "1/3 payouts completed for native @ 10. Issues detected! <!here>",
		SettlementSummary(settlement.Result{Completed: 1, Total: 3}, PayoutLabel("native", 10)))
	assert.Equal(t, "0/0 payouts completed for x.", SettlementSummary(settlement.Result{}, "x"))
}

func TestNotify(t *testing.T) {
	ctx := context.Background()

	t.Run("Posts the text to the webhook", func(t *testing.T) {
		var got map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		require.NoError(t, New(srv.URL).Notify(ctx, "hello"))
		assert.Equal(t, "hello", got["text"])
	})

	t.Run("Reports webhook failures", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		assert.Error(t, New(srv.URL).Notify(ctx, "hello"))
	})

	t.Run("Missing webhook only logs", func(t *testing.T) {
		assert.NoError(t, New("").Notify(ctx, "hello"))
	})
}
