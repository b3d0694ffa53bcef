package repository

// MessageBus delivers ledger events to whatever transport is configured.
type MessageBus interface {
	Publish(topic string, data []byte) error
}
