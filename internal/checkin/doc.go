// Package checkin performs check-in submissions against the attendance
// service.
//
// A Client turns one (account, location) pair into exactly one Outcome. It
// validates coordinates locally, submits the form, classifies the response
// (HTML via goquery or JSON), retries transport failures with linear backoff,
// and re-authenticates once with the account password when the session has
// expired. Clients never mutate the account or location they are given.
package checkin
