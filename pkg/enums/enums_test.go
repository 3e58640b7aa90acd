package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrencyNormalizesCase(t *testing.T) {
	cur, err := ParseCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, CurrencyUSD, cur)
	assert.Equal(t, "usd", cur.ProcessorCode())

	_, err = ParseCurrency("BTC")
	assert.EqualError(t, err, `invalid currency "BTC"`)
}

func TestItemTypeCapacityExempt(t *testing.T) {
	for _, it := range itemTypes {
		assert.Equal(t, it == ItemTypeAppointment, it.CapacityExempt(), it.String())
	}
	_, err := ParseItemType("seat")
	assert.Error(t, err)
}

func TestSnapshotStateTerminal(t *testing.T) {
	assert.False(t, SnapshotStatePending.IsTerminal())
	assert.True(t, SnapshotStatePaid.IsTerminal())
	assert.True(t, SnapshotStateFailed.IsTerminal())
	_, err := ParseSnapshotState("expired")
	assert.Error(t, err)
}

func TestUnfulfilledStatusesAreValid(t *testing.T) {
	for _, s := range UnfulfilledConfirmedPaymentStatuses {
		assert.True(t, s.IsValid(), s.String())
	}
	assert.NotContains(t, UnfulfilledConfirmedPaymentStatuses, ConfirmedPaymentStatusFulfilled)
}

func TestOutboxEnums(t *testing.T) {
	for _, e := range eventTypes {
		parsed, err := ParseOutboxEventType(string(e))
		require.NoError(t, err)
		assert.Equal(t, e, parsed)
	}
	_, err := ParseOutboxAggregateType("vendor_order")
	assert.Error(t, err)
	assert.True(t, OutboxDLQReasonMaxAttempts.IsValid())
	assert.False(t, OutboxDLQErrorReason("timeout").IsValid())
}
