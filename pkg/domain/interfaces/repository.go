package interfaces

// Repository aggregates the persistence backends of the service
type Repository interface {
	Conversation() ConversationRepository

	// Close releases underlying resources (connections, file handles)
	Close() error
}
