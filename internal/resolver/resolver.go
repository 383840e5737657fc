// Package resolver expands task references into concrete (account, location)
// pairs.
package resolver

import (
	"fmt"
	"iter"

	"autocheck/internal/profile"
	"autocheck/internal/services"
)

// Resolved is one enabled task after lookup. Err is set when either reference
// is missing; Account and Location are then only partially populated.
type Resolved struct {
	// Index is the task's position in declaration order, counting disabled
	// tasks, so results can be matched back to the profile.
	Index    int
	Task     profile.Task
	Account  profile.Account
	Location profile.Location
	Err      error
}

// Sequence is a restartable view over resolved tasks.
type Sequence struct {
	tasks     []profile.Task
	accounts  map[string]profile.Account
	locations map[string]profile.Location
}

// Resolve indexes accounts and locations by exact name. The first entry wins
// when names repeat. No lookup happens until the sequence is ranged.
func Resolve(tasks []profile.Task, accounts []profile.Account, locations []profile.Location) Sequence {
	seq := Sequence{
		tasks:     tasks,
		accounts:  make(map[string]profile.Account, len(accounts)),
		locations: make(map[string]profile.Location, len(locations)),
	}
	for _, account := range accounts {
		if _, dup := seq.accounts[account.Name]; !dup {
			seq.accounts[account.Name] = account
		}
	}
	for _, location := range locations {
		if _, dup := seq.locations[location.Name]; !dup {
			seq.locations[location.Name] = location
		}
	}
	return seq
}

// FromSnapshot resolves the tasks of snap.
func FromSnapshot(snap profile.Snapshot) Sequence {
	return Resolve(snap.Tasks, snap.Accounts, snap.Locations)
}

// All yields enabled tasks in declaration order. The key is the zero-based
// ordinal among yielded items. Each call starts over.
func (s Sequence) All() iter.Seq2[int, Resolved] {
	return func(yield func(int, Resolved) bool) {
		n := 0
		for i, task := range s.tasks {
			if !task.Enable {
				continue
			}
			item := Resolved{Index: i, Task: task}
			account, okAccount := s.accounts[task.AccountName]
			location, okLocation := s.locations[task.LocationName]
			switch {
			case !okAccount:
				item.Account = profile.Account{Name: task.AccountName}
				item.Location = profile.Location{Name: task.LocationName}
				item.Err = services.Wrap(services.ErrNotFound, "", "", fmt.Sprintf("account not found: %q", task.AccountName), nil)
			case !okLocation:
				item.Account = account
				item.Location = profile.Location{Name: task.LocationName}
				item.Err = services.Wrap(services.ErrNotFound, "", "", fmt.Sprintf("location not found: %q", task.LocationName), nil)
			default:
				item.Account = account
				item.Location = location
			}
			if !yield(n, item) {
				return
			}
			n++
		}
	}
}

// Len counts the items All would yield.
func (s Sequence) Len() int {
	n := 0
	for _, task := range s.tasks {
		if task.Enable {
			n++
		}
	}
	return n
}

// Collect materializes the sequence.
func (s Sequence) Collect() []Resolved {
	out := make([]Resolved, 0, s.Len())
	for _, item := range s.All() {
		out = append(out, item)
	}
	return out
}
