package ids

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Business-facing numbers carry a short prefix and a random numeric suffix.
// The suffix space is small enough that collisions are possible under
// concurrent load; callers retry on unique-constraint violations.
const (
	OrderPrefix    = "WS-"
	InvoicePrefix  = "INV-"
	DonorPrefix    = "DN-"
	DonationPrefix = "DON-"
	SamplePrefix   = "SM-"
	BarcodePrefix  = "BC-"
)

// Number returns prefix followed by digits random decimal digits.
func Number(prefix string, digits int) string {
	if digits <= 0 {
		digits = 6
	}
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(fmt.Sprintf("ids: read random: %v", err))
	}
	return fmt.Sprintf("%s%0*d", prefix, digits, n)
}

// OrderNumber generates a storefront order number.
func OrderNumber() string { return Number(OrderPrefix, 6) }

// InvoiceFor derives the invoice number paired with an order number, so
// order WS-123456 always matches invoice INV-123456.
func InvoiceFor(orderNumber string) string {
	return InvoicePrefix + strings.TrimPrefix(orderNumber, OrderPrefix)
}

// DonorID generates a donor registry number.
func DonorID() string { return Number(DonorPrefix, 8) }

// DonationID generates a donation record number.
func DonationID() string { return Number(DonationPrefix, 8) }

// SampleID generates a sample accession number.
func SampleID() string { return Number(SamplePrefix, 8) }

// Barcode generates a sample barcode.
func Barcode() string { return Number(BarcodePrefix, 10) }
