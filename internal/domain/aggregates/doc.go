// Package aggregates defines aggregate write contracts and the error codes every
// conversation-level operation reports.
//
// Contracts carry no persistence detail; implementations live in
// internal/data/aggregates.
package aggregates
