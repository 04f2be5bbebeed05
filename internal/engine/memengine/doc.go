// Package memengine provides an in-memory implementation of the engine
// contract. It renders nothing; instead it records every connection and
// every scheduled automation point, and evaluates parameter values over a
// mockable clock. It is the default engine for headless runs and the only
// engine the tests need.
package memengine
