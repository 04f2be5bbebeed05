// Package engine declares the contract of the audio rendering collaborator.
//
// The runtime core never computes samples. It constructs engine primitives,
// connects and disconnects them, and schedules parameter automation; the
// engine implementation behind the interface does everything sample-related.
//
// For a recording in-memory implementation see the memengine subpackage.
package engine
