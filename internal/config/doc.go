// Package config loads, normalizes, and validates autocheck daemon configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AUTOCHECK_BASE_URL. The Config type centralizes the knobs the daemon and CLI
// need: where state and logs live, how the check-in service is reached, how
// WeCom is contacted, and how the daily schedule is evaluated.
//
// Accounts, locations, tasks and the schedule time are not part of this file;
// they live in the profile document owned by package profile.
package config
