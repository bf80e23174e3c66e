// Package app provides the application service layer.
//
// Turns inbound message events into mute decisions and carries them out against
// the gateway. Depends on domain interfaces, not concrete implementations.
package app
