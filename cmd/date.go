package cmd

import (
	"fmt"
	"time"

	"github.com/JakeFAU/sheets-relay/internal/batch"
)

// resolveDate parses a YYYYMMDD flag value, defaulting to now's date.
func resolveDate(flag string, now time.Time) (time.Time, error) {
	if flag == "" {
		return now, nil
	}
	day, err := time.ParseInLocation(batch.DateLayout, flag, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, want YYYYMMDD: %w", flag, err)
	}
	return day, nil
}
