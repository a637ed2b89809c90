// Package notify delivers acquisition events to external sinks.
//
// Sinks are plugins behind the Notifier interface: ntfy push
// notifications and a media-server library refresh webhook ship with the
// daemon. Dispatch is fire-and-forget; a failing sink is logged and never
// propagates into the acquisition loop.
package notify
