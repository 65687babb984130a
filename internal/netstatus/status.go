// Package netstatus reports whether the remote side is reachable and
// notifies listeners when that changes.
package netstatus

import "context"

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Status is one connectivity observation. An unknown reachability is
// reported as false.
type Status struct {
	Connected         bool
	InternetReachable bool
}

// Online reports whether remote work should be attempted.
func (s Status) Online() bool {
	return s.Connected && s.InternetReachable
}

func (s Status) Mode() Mode {
	if s.Online() {
		return ModeOnline
	}
	return ModeOffline
}

// Provider performs one connectivity check.
type Provider interface {
	FetchStatus(ctx context.Context) (Status, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Status, error)

func (f ProviderFunc) FetchStatus(ctx context.Context) (Status, error) { return f(ctx) }
