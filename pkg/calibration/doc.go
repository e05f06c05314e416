// Package calibration defines the types shared by the SLM calibration engine,
// the daemon and its clients. It contains:
//
//   - Standard and Procedure: what a run executes
//   - Phase: the discrete steps a procedure reports while it runs
//   - Status: a synthesized view model returned by HTTP APIs
//   - Table: the structured result a procedure produces
//
// Keeping them in one package avoids duplicate definitions and keeps the JSON
// contracts between daemon and client consistent.
package calibration
