// Package faults defines the error taxonomy shared across the engine.
//
// Every surfaced failure is classified by a [Kind] that determines its
// propagation policy: validation and capacity errors fail fast before any
// document mutation, transient errors are retried locally with backoff,
// and critical errors roll back in-flight work before surfacing.
package faults
