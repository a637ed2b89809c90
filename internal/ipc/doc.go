// Package ipc defines the wire types of the daemon's HTTP API and a
// client for them. The CLI is the primary consumer.
package ipc
