package logging

import "fmt"

// LogDir is where NewFileLogger writes when /var/log is writable
const LogDir = "/var/log/timinghooks"

// GenerateLogrotateConfig creates a logrotate configuration for the files
// NewFileLogger writes. Rotated files are owned by user.
func GenerateLogrotateConfig(user string) string {
	if user == "" {
		user = "root"
	}
	return fmt.Sprintf(`# Logrotate configuration for timinghooks
# Install: sudo cp this file to /etc/logrotate.d/timinghooks

%s/*.log {
    daily
    rotate 14

    compress
    delaycompress

    missingok
    notifempty

    # the collector keeps its log open, so truncate in place
    copytruncate
    su %s %s
}
`, LogDir, user, user)
}
