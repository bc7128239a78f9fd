// Package lockout persists failed unlock attempts per container.
//
// State is written to two backends, a BBolt bucket (primary) and a
// JSON file per container (fallback), so deleting one copy does not
// reset throttling. Reads prefer the primary and rewrite the other copy.
//
// Guard applies the policy: after MaxAttempts consecutive failures the
// container is locked for Duration, and Check rejects every attempt
// until the window has elapsed.
package lockout
