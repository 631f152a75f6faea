package ledger

// Options carries the ledger-wide defaults. They are threaded into
// constructors explicitly, never held in process-wide state, so engine
// calls stay deterministic and testable.
type Options struct {
	// DefaultCurrency is applied to line items submitted without one.
	DefaultCurrency Currency

	// CashAccount receives the synthesized counterpart of receipt and
	// disbursement entries.
	CashAccount string
}

// DefaultOptions returns the conventional account codes used when no
// configuration is supplied.
func DefaultOptions() Options {
	return Options{
		DefaultCurrency: "USD",
		CashAccount:     "1111",
	}
}
