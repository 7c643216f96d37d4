package domain

import "github.com/google/uuid"

// NewID returns a globally-unique identifier for messages, tasks and
// intents: IDs never collide within a process lifetime.
func NewID() string {
	return uuid.NewString()
}
