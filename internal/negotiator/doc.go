// Package negotiator drives the OOB negotiation message exchange over a
// transport.Connection: capability request/response, configuration
// set/response, start/stop ranging, for both the initiator and responder
// roles (spec 4.E).
package negotiator
