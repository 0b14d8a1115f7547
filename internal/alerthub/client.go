package alerthub

// Client is one live subscriber to the alert feed.
type Client interface {
	// ID identifies the subscriber in logs and in the hub's registry.
	ID() string
	// SendChannel receives encoded events from the hub.
	SendChannel() chan<- []byte
	// Run starts the client's pumps.
	Run()
	// Close stops the client. The hub calls it once, after unregistering.
	Close()
}
