// Package tui implements the interactive watch screen.
//
// The watch screen is a read-only dashboard for a device: it opens a
// session, pings on an interval, and renders the playback state, point
// rate, lifetime point count, and buffer fullness as a live gauge. It
// never sends playback commands, so it is safe to leave running next to
// a show.
//
// Built on Bubble Tea with Bubbles components and Lip Gloss styling.
package tui
