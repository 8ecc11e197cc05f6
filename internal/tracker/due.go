package tracker

import (
	"fmt"
	"time"
)

// TimeUntilDue renders the offset between reminder and now in whole minutes.
// A reminder at exactly now counts as remaining. No reminder yields "".
func TimeUntilDue(reminder *time.Time, now time.Time) string {
	if reminder == nil || reminder.IsZero() {
		return ""
	}
	difference := reminder.Sub(now)
	if difference >= 0 {
		return fmt.Sprintf("%d minutes remaining", int64(difference/time.Minute))
	}
	return fmt.Sprintf("%d minutes ago", int64(-difference/time.Minute))
}
