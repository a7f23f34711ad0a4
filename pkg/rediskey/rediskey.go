package rediskey

import "fmt"

// Billing keys (global convention across binaries)
const (
	BillingRunPrefix      = "billing:run"
	InvoiceSequencePrefix = "seq:invoice"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildBillingRunKey returns "billing:run:{yyyy-mm}" for the billed period.
func BuildBillingRunKey(year, month int) string {
	return NamespaceKey(BillingRunPrefix, fmt.Sprintf("%04d-%02d", year, month))
}

// BuildInvoiceSequenceKey returns "seq:invoice:{yymm}".
func BuildInvoiceSequenceKey(yymm string) string {
	return NamespaceKey(InvoiceSequencePrefix, yymm)
}
