// Package queue holds the ready segments of a radio session.
// It is a plain FIFO with a depth that can be observed without mutation,
// so the scheduler and the UI can read it while playback consumes it.
package queue
