package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortableAndUnique(t *testing.T) {
	a := New()
	b := New()
	require.Len(t, a, 26)
	require.Len(t, b, 26)
	assert.NotEqual(t, a, b)
	// Monotonic entropy within the same process keeps ordering stable.
	assert.True(t, a < b)
}

func TestNumberFormat(t *testing.T) {
	n := Number("WS-", 6)
	require.True(t, strings.HasPrefix(n, "WS-"))
	assert.Len(t, n, 9)
	for _, r := range n[3:] {
		assert.True(t, r >= '0' && r <= '9', "suffix must be numeric: %s", n)
	}
}

func TestInvoiceFor(t *testing.T) {
	assert.Equal(t, "INV-123456", InvoiceFor("WS-123456"))
	// numbers without the order prefix still pair deterministically
	assert.Equal(t, "INV-999999", InvoiceFor("999999"))
}

func TestBusinessNumberPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(OrderNumber(), "WS-"))
	assert.True(t, strings.HasPrefix(DonorID(), "DN-"))
	assert.True(t, strings.HasPrefix(DonationID(), "DON-"))
	assert.True(t, strings.HasPrefix(SampleID(), "SM-"))
	assert.True(t, strings.HasPrefix(Barcode(), "BC-"))
}
