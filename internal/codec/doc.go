// Package codec implements the OOB wire message family: a length-prefixed,
// version-tagged binary protocol for capability negotiation, configuration,
// and start/stop exchange between two ranging peers (spec 4.A, 6.4).
package codec
