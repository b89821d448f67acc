package logging

import "fmt"

// GenerateLogrotateConfig creates a logrotate configuration for the log files
// a component writes under baseDir
func GenerateLogrotateConfig(baseDir, component string) string {
	return fmt.Sprintf(`# Logrotate configuration for regionocr %s
# Install: sudo cp this file to /etc/logrotate.d/regionocr-%s

%s/%s/*.log {
    daily
    rotate 14
    compress
    delaycompress
    missingok
    notifempty
    create 0644 regionocr regionocr
    sharedscripts
    postrotate
        systemctl reload regionocr-%s 2>/dev/null || true
    endscript
}
`, component, component, baseDir, component, component)
}
