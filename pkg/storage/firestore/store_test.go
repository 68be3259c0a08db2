package firestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fxbill/pkg/billing"
)

func TestDecode_MixedTimestampEncodings(t *testing.T) {
	issued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data := map[string]interface{}{
		"customer_id":           "cus_001",
		"period":                "2024-05",
		"status":                "issued",
		"amount_local_at_issue": int64(49980),
		"issued_at":             issued,
		"expires_at":            "2024-05-03T12:00:00.000Z",
	}

	var p billing.BillingPeriod
	require.NoError(t, decode(data, &p))
	assert.Equal(t, billing.PeriodStatusIssued, p.Status)
	assert.Equal(t, 49980.0, *p.AmountLocalAtIssue)
	assert.True(t, issued.Equal(*p.IssuedAt))
	assert.True(t, issued.Add(48*time.Hour).Equal(*p.ExpiresAt))
}

func TestDecode_Payment(t *testing.T) {
	data := map[string]interface{}{
		"customer_id":        "cus_001",
		"period":             "2024-04",
		"transaction_amount": 47000.5,
		"date_approved":      time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC),
	}

	var p billing.Payment
	require.NoError(t, decode(data, &p))
	assert.Equal(t, 47000.5, *p.TransactionAmount)
	assert.Equal(t, "2024-04", p.Period)
}

func TestDecode_InvalidTimestamp(t *testing.T) {
	var p billing.BillingPeriod
	assert.Error(t, decode(map[string]interface{}{"issued_at": "yesterday"}, &p))
}
