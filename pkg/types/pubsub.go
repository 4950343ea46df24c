package types

import (
	"time"
)

// ConsumedMessage is a broker message handed to the invalidation listener.
type ConsumedMessage struct {
	// ID is the unique identifier for the message from the source broker.
	ID string
	// Payload is the raw byte content of the message. Invalidation messages
	// usually carry everything in Attributes and leave this empty.
	Payload []byte
	// PublishTime is the timestamp when the message was originally published.
	PublishTime time.Time

	Attributes map[string]string

	Ack func()
	// Nack is a function to call to signal that processing has failed and the
	// message should be re-delivered.
	Nack func()
}
