// Package transport implements the OOB transport connection: a
// full-duplex byte-message channel with FIFO send/receive queues and a
// {CONNECTED, DISCONNECTED, CLOSED} state machine, plus a reference TCP
// handle (spec 4.B, 6.2).
package transport
