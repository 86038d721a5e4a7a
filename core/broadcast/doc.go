// Package broadcast fans live vehicle positions out to subscribers.
//
// A Dispatcher keeps, per channel, a copy-on-write snapshot of the live
// subscriptions. Publish hands the fan-out to the location worker pool keyed
// by vehicle so that updates of one vehicle are processed in order. Every
// subscription owns a queue and a delivery goroutine, so a slow or dead
// subscriber only affects itself. Updates are never discarded for a
// subscriber that keeps up; one whose backlog reaches Config.MailboxSize is
// torn down with ErrSubscriberLagging. A failed delivery tears the
// subscription down and is never retried.
package broadcast
