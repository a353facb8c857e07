// Package state persists the last reported body of each device in SQLite.
//
// The relay reads it to complete a message that carries only a location, or
// only sensor values, with the fields of the previous message.
package state
