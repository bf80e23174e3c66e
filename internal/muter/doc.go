// Package muter implements the adaptive auto-mute decision engine.
//
// An Engine counts the messages of one conversation inside a sliding window and
// decides when the conversation must be muted, escalating straight to a new mute
// when traffic resumes right after the previous one. The Registry owns one Engine
// per conversation together with the cached mute-until timestamps that let it drop
// events for conversations that are already muted without asking the gateway.
package muter
