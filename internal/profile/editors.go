package profile

import (
	"fmt"
	"strings"

	"autocheck/internal/services"
)

// PutAccount inserts account or replaces the entry with the same name.
func (s *Store) PutAccount(account Account) error {
	account.Name = strings.TrimSpace(account.Name)
	account.ClassID = strings.TrimSpace(account.ClassID)
	account.Cookie = strings.TrimSpace(account.Cookie)
	if account.Name == "" {
		return services.Wrap(services.ErrValidation, "profile", "put account", "account name is required", nil)
	}
	var accounts []Account
	return s.Update(KeyAccounts, &accounts, func() error {
		for i := range accounts {
			if accounts[i].Name == account.Name {
				accounts[i] = account
				return nil
			}
		}
		accounts = append(accounts, account)
		return nil
	})
}

// RemoveAccount deletes the named account. Tasks referencing it are kept and
// will resolve to "account not found" until fixed.
func (s *Store) RemoveAccount(name string) error {
	var accounts []Account
	return s.Update(KeyAccounts, &accounts, func() error {
		for i := range accounts {
			if accounts[i].Name == name {
				accounts = append(accounts[:i], accounts[i+1:]...)
				return nil
			}
		}
		return services.Wrap(services.ErrNotFound, "profile", "remove account", fmt.Sprintf("account %q", name), nil)
	})
}

// PutLocation inserts location or replaces the entry with the same name.
func (s *Store) PutLocation(location Location) error {
	location.Name = strings.TrimSpace(location.Name)
	location.Lat = strings.TrimSpace(location.Lat)
	location.Lng = strings.TrimSpace(location.Lng)
	location.Acc = strings.TrimSpace(location.Acc)
	if location.Name == "" {
		return services.Wrap(services.ErrValidation, "profile", "put location", "location name is required", nil)
	}
	if location.Acc == "" {
		location.Acc = DefaultAccuracy
	}
	var locations []Location
	return s.Update(KeyLocations, &locations, func() error {
		for i := range locations {
			if locations[i].Name == location.Name {
				locations[i] = location
				return nil
			}
		}
		locations = append(locations, location)
		return nil
	})
}

// RemoveLocation deletes the named location.
func (s *Store) RemoveLocation(name string) error {
	var locations []Location
	return s.Update(KeyLocations, &locations, func() error {
		for i := range locations {
			if locations[i].Name == name {
				locations = append(locations[:i], locations[i+1:]...)
				return nil
			}
		}
		return services.Wrap(services.ErrNotFound, "profile", "remove location", fmt.Sprintf("location %q", name), nil)
	})
}

// AddTask appends a task. References are not checked against existing
// accounts or locations.
func (s *Store) AddTask(task Task) error {
	task.AccountName = strings.TrimSpace(task.AccountName)
	task.LocationName = strings.TrimSpace(task.LocationName)
	if task.AccountName == "" || task.LocationName == "" {
		return services.Wrap(services.ErrValidation, "profile", "add task", "account and location are required", nil)
	}
	var tasks []Task
	return s.Update(KeyTasks, &tasks, func() error {
		tasks = append(tasks, task)
		return nil
	})
}

// RemoveTask deletes the task at index (zero-based declaration order).
func (s *Store) RemoveTask(index int) error {
	var tasks []Task
	return s.Update(KeyTasks, &tasks, func() error {
		if index < 0 || index >= len(tasks) {
			return services.Wrap(services.ErrNotFound, "profile", "remove task", fmt.Sprintf("no task at index %d", index), nil)
		}
		tasks = append(tasks[:index], tasks[index+1:]...)
		return nil
	})
}

// SetTaskEnabled flips the enable flag of the task at index.
func (s *Store) SetTaskEnabled(index int, enabled bool) error {
	var tasks []Task
	return s.Update(KeyTasks, &tasks, func() error {
		if index < 0 || index >= len(tasks) {
			return services.Wrap(services.ErrNotFound, "profile", "set task", fmt.Sprintf("no task at index %d", index), nil)
		}
		tasks[index].Enable = enabled
		return nil
	})
}
