package interfaces

// EventPublisher emits committed-transaction events to downstream consumers.
// Publishing is best-effort: the ledger never rolls back on publish failure.
type EventPublisher interface {
	Publish(topic string, event any) error
}
