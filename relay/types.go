// Package relay moves signed proposal envelopes between agents over a
// shared append-only log. Delivery is at-least-once; the receive path
// is idempotent thanks to the nonce ledger, so duplicates are harmless.
package relay

type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Envelope  string `json:"envelope"`
	Offset    uint64 `json:"offset"`
}

type Relay interface {
	Send(message Message) (Message, error)
	GetMessages(offset uint64) ([]Message, error)
	Close() error
}
