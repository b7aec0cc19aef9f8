package daemon

import (
	sddaemon "github.com/coreos/go-systemd/v22/daemon"
)

// Service manager states sent through a Notifier.
const (
	StateReady     = sddaemon.SdNotifyReady
	StateReloading = sddaemon.SdNotifyReloading
	StateStopping  = sddaemon.SdNotifyStopping
)

// Notifier reports lifecycle transitions to a service manager.
type Notifier interface {
	Notify(state string) error
}

// SystemdNotifier sends sd_notify messages. Outside a systemd unit
// (NOTIFY_SOCKET unset) every call is a no-op.
type SystemdNotifier struct{}

// Notify implements Notifier.
func (SystemdNotifier) Notify(state string) error {
	_, err := sddaemon.SdNotify(false, state)
	return err
}
