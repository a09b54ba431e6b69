package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIsLenientAboutCaseAndSpace(t *testing.T) {
	role, err := ParseActorRole(" Supplier ")
	require.NoError(t, err)
	assert.Equal(t, ActorRoleSupplier, role)

	sort, err := ParseProductSort("PRICE-LOW")
	require.NoError(t, err)
	assert.Equal(t, ProductSortPriceLow, sort)
}

func TestParseRejectsUnknownValues(t *testing.T) {
	_, err := ParseOrderStatus("shipped-ish")
	assert.EqualError(t, err, `invalid order status "shipped-ish"`)

	_, err = ParseDeadLetterReason("lost")
	assert.Error(t, err)
}

func TestIsValidIsExact(t *testing.T) {
	assert.True(t, PaymentMethodUPI.IsValid())
	assert.False(t, PaymentMethod("UPI").IsValid())
	assert.True(t, DeadLetterNonRetryable.IsValid())
}
