// Package ranging implements the per-peer ranging session core: the data
// model, the capability registry, the ranging adapter trait, the peer
// session FSM, the data-notification gate, and the optional fusion adapter.
package ranging
