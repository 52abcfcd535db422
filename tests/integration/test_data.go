package integration

import (
	"fmt"
	"time"
)

// TestEmail generates a unique test email address using a timestamp
func TestEmail(suffix string) string {
	return fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
}
