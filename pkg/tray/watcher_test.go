package tray

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualifyService(t *testing.T) {
	tests := []struct {
		name    string
		service string
		sender  string
		want    string
	}{
		{
			name:    "bare path is qualified with the sender",
			service: "/StatusNotifierItem",
			sender:  ":1.42",
			want:    ":1.42/StatusNotifierItem",
		},
		{
			name:    "unique name is kept verbatim",
			service: ":1.90/StatusNotifierItem",
			sender:  ":1.42",
			want:    ":1.90/StatusNotifierItem",
		},
		{
			name:    "well-known name is kept verbatim",
			service: "org.kde.StatusNotifierItem-1234-1",
			sender:  ":1.42",
			want:    "org.kde.StatusNotifierItem-1234-1",
		},
		{
			name:    "foreign sender cannot be forged into a bus name",
			service: "/org/ayatana/NotificationItem",
			sender:  ":1.7",
			want:    ":1.7/org/ayatana/NotificationItem",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, qualifyService(tt.service, tt.sender))
		})
	}
}
