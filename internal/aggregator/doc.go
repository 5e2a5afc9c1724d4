// Package aggregator owns every active ranging.PeerSession for the local
// device, fans out their lifecycle callbacks onto a single event channel
// (Aggregator.Events), and reconciles the active set against a desired peer list
// (spec 4.H).
package aggregator
