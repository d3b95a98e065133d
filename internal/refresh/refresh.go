package refresh

import "context"

// Coordinator coalesces the three reload triggers (periodic tick, change
// notification, foreground activation) into a single non-overlapping
// reload stream.
type Coordinator interface {
	Start(ctx context.Context) error

	// Request is the coalescing entry point. Manual pull-to-refresh goes
	// through here too.
	Request()

	// Activate marks the app foreground and requests an immediate reload;
	// Deactivate suspends the periodic tick.
	Activate()
	Deactivate()
}
