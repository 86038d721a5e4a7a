package broadcast

import "errors"

var (
	// ErrClosed is returned once the dispatcher has been closed.
	ErrClosed = errors.New("broadcast: dispatcher closed")
	// ErrSubscriptionDenied is returned when the gate refuses a subscription.
	ErrSubscriptionDenied = errors.New("broadcast: subscription denied")
	// ErrInvalidDestination is returned for destinations inside the namespace
	// that do not name a vehicle or trip channel.
	ErrInvalidDestination = errors.New("broadcast: invalid destination")
	// ErrSubscriberLagging tears down a subscription whose backlog reached
	// the mailbox size.
	ErrSubscriberLagging = errors.New("broadcast: subscriber lagging")
	// ErrInvalidUpdate is returned for updates without a vehicle id.
	ErrInvalidUpdate = errors.New("broadcast: update without vehicle id")
)
