package broadcast

import "time"

// Event describes a change of the subscription set. Action is one of the
// metrics.Action* constants.
type Event struct {
	Action         string
	SubscriptionID string
	Subject        string
	Destination    string
	Reason         string
	// Active is the number of live subscriptions after the change.
	Active int
	Time   time.Time
}
