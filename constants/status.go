package constants

// ConversionStatus is the canonical outcome stored for each conversion.
type ConversionStatus string

// Stable values (store these exact strings in the ledger).
const (
	StatusOK        ConversionStatus = "OK"        // all pages processed
	StatusTruncated ConversionStatus = "TRUNCATED" // page cap reached
	StatusRejected  ConversionStatus = "REJECTED"  // validation failed, backend not called
	StatusFailed    ConversionStatus = "FAILED"    // staging or backend failure
)
