// Package selector implements the config selector: a pure function that
// intersects local and peer capabilities against a constraint and produces
// concrete per-technology ranging parameters (spec 4.D).
package selector
