package profile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Document keys.
const (
	KeyAccounts     = "accounts"
	KeyLocations    = "locations"
	KeyTasks        = "tasks"
	KeyScheduleTime = "scheduletime"
	KeyWeCom        = "wecom"
	KeyDebug        = "debug"
)

const (
	// DefaultScheduleTime is used when the document has no scheduletime.
	DefaultScheduleTime = "08:00"
	// DefaultToUser addresses every member of the WeCom application.
	DefaultToUser = "@all"
	// DefaultAccuracy is stored for locations created without an accuracy.
	DefaultAccuracy = "0.0"
)

// Account is a credential set for one attendance identity.
type Account struct {
	Name    string `json:"name"`
	ClassID string `json:"class_id"`
	Cookie  string `json:"cookie"`
	Pwd     string `json:"pwd"`
}

// Location is a named coordinate triple kept as decimal strings.
type Location struct {
	Name string `json:"name"`
	Lat  string `json:"lat"`
	Lng  string `json:"lng"`
	Acc  string `json:"acc"`
}

// Task pairs an account with a location by name.
type Task struct {
	AccountName  string `json:"account_name"`
	LocationName string `json:"location_name"`
	Enable       bool   `json:"enable"`
}

// UnmarshalJSON treats a missing enable flag as enabled.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	decoded := plain{Enable: true}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*t = Task(decoded)
	return nil
}

// AgentID accepts either a JSON string or number.
type AgentID string

// UnmarshalJSON implements json.Unmarshaler.
func (a *AgentID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = AgentID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("agentid must be a string or number: %w", err)
	}
	*a = AgentID(n.String())
	return nil
}

// Int parses the agent id for the WeCom message payload.
func (a AgentID) Int() (int, error) {
	return strconv.Atoi(strings.TrimSpace(string(a)))
}

// WeCom holds enterprise WeChat application credentials.
type WeCom struct {
	CorpID  string  `json:"corpid"`
	Secret  string  `json:"secret"`
	AgentID AgentID `json:"agentid"`
	ToUser  string  `json:"touser"`
}

// Configured reports whether notifications can be attempted.
func (w WeCom) Configured() bool {
	return strings.TrimSpace(w.CorpID) != "" &&
		strings.TrimSpace(w.Secret) != "" &&
		strings.TrimSpace(string(w.AgentID)) != ""
}

// Recipient returns the touser value with its default applied.
func (w WeCom) Recipient() string {
	if v := strings.TrimSpace(w.ToUser); v != "" {
		return v
	}
	return DefaultToUser
}

// Settings groups the global keys of the document.
type Settings struct {
	ScheduleTime string
	WeCom        WeCom
	Debug        bool
}

// Snapshot is a typed, point-in-time view of the whole document.
type Snapshot struct {
	Accounts  []Account
	Locations []Location
	Tasks     []Task
	Settings  Settings
}

// EnabledTasks counts tasks with the enable flag set.
func (s Snapshot) EnabledTasks() int {
	n := 0
	for _, task := range s.Tasks {
		if task.Enable {
			n++
		}
	}
	return n
}
