package models

import "github.com/google/uuid"

// ensureID assigns a random identity before insert so models behave the same on
// Postgres and SQLite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
