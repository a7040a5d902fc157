package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// invoicePayload builds the opaque payload attached to a subscription invoice.
func invoicePayload(days int, accountID int64, at time.Time) string {
	return fmt.Sprintf("sub_%dd:%d:%d", days, accountID, at.Unix())
}

// checkInvoicePayload verifies that payload was issued for accountID.
func checkInvoicePayload(payload string, days int, accountID int64) error {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 || parts[0] != fmt.Sprintf("sub_%dd", days) {
		return ErrUnknownInvoice
	}
	if parts[1] != strconv.FormatInt(accountID, 10) {
		return ErrUnknownInvoice
	}
	if _, err := strconv.ParseInt(parts[2], 10, 64); err != nil {
		return ErrUnknownInvoice
	}
	return nil
}
