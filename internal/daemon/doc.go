// Package daemon ties the acquisition pipeline together: it enforces
// single-instance execution, runs the scheduler and the periodic episode
// check, serves the HTTP API, and handles config reloads.
package daemon
