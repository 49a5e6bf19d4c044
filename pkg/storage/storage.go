package storage

// BookingStore composes the ledger and roster interfaces for components that
// own both resources (the API service wiring). Components should depend on
// the granular interfaces (LedgerStore, RosterStore, NotificationStore)
// instead of this one.
type BookingStore interface {
	LedgerStore
	RosterStore
}
