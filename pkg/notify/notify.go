// Package notify sends desktop notifications over the
// org.freedesktop.Notifications interface.
package notify

import (
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/module"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = "/org/freedesktop/Notifications"
	method     = "org.freedesktop.Notifications.Notify"
)

// Service delivers desktop notifications. It satisfies module.Notifier.
type Service struct {
	conn      *dbus.Conn
	log       *zap.SugaredLogger
	enabled   bool
	timeoutMs int
}

// New returns a Service configured from cfg.
func New(conn *dbus.Conn, log *zap.SugaredLogger, cfg config.NotificationsConfig) *Service {
	return &Service{
		conn:      conn,
		log:       log,
		enabled:   cfg.Enabled,
		timeoutMs: cfg.TimeoutMs,
	}
}

// Send delivers a notification with the given urgency. Failures are
// logged, never propagated; a missing notification daemon must not affect
// the panel.
func (s *Service) Send(title, body string, urgency module.Urgency) {
	s.SendWithIcon(title, body, urgency, "")
}

// SendWithIcon is Send with a theme icon attached.
func (s *Service) SendWithIcon(title, body string, urgency module.Urgency, icon string) {
	if !s.enabled {
		return
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(urgency)),
	}

	// Timeout 0 means never expire; the wire value for "never" is 0 and
	// "server default" is -1, so pass the configured value through.
	timeout := int32(s.timeoutMs)

	// Argument order per the freedesktop notification spec: app name,
	// replaces id, app icon, summary, body, actions, hints, timeout.
	call := s.conn.Object(busName, objectPath).Call(method, 0,
		"waytray", uint32(0), icon, title, body, []string{}, hints, timeout)
	if call.Err != nil {
		s.log.Warnw("failed to send notification", "title", title, "error", call.Err)
	}
}
