package instance

import "os"

// GetID returns the identifier used to tag logs emitted by this process.
func GetID() string {
	if id := os.Getenv("STOCKLEDGER_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "instance-0"
}
