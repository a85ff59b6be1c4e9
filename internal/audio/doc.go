// Package audio plays radio segments through the system audio device
// using oto/v3, decoding MP3 with beep and exposing frequency-domain
// energy of whatever is currently audible.
package audio
