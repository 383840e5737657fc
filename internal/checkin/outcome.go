package checkin

import "autocheck/internal/services"

// Status is the terminal state of one task.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Detail strings with fixed meaning.
const (
	DetailAlreadyCheckedIn = "already checked in"
	DetailCheckedIn        = "checked in"
	DetailNoCredential     = "session expired, no fallback credential"
	DetailReauthFailed     = "re-authentication failed"
)

// Outcome is the result of one task in a run.
type Outcome struct {
	AccountName  string         `json:"account_name"`
	LocationName string         `json:"location_name"`
	Status       Status         `json:"status"`
	Detail       string         `json:"detail"`
	Class        services.Class `json:"class,omitempty"`
	Attempts     int            `json:"attempts"`
	Reauthed     bool           `json:"reauthed,omitempty"`
}

// Succeeded reports whether the outcome counts as a success.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Failed builds a failure outcome for an error that happened before or
// outside a check-in attempt.
func Failed(accountName, locationName string, err error) Outcome {
	return Outcome{
		AccountName:  accountName,
		LocationName: locationName,
		Status:       StatusFailure,
		Detail:       errorDetail(err),
		Class:        services.Classify(err),
	}
}
