// Package services defines shared error markers and context helpers consumed
// by the check-in client, runner, scheduler and notification integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers, trigger origins, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so every failure carries
//     a category (validation, auth, rejection, transport, resolution) that
//     callers classify with errors.Is instead of string matching.
package services
