// Package report renders batches and admin summaries as plain text.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/keygate/internal/access"
	"github.com/example/keygate/internal/service"
)

const stampLayout = "2006-01-02 15:04:05"

// BatchFilename names a delivered batch <category>_<YYYYmmdd_HHMMSS>.txt.
func BatchFilename(category string, at time.Time) string {
	return fmt.Sprintf("%s_%s.txt", category, at.Format("20060102_150405"))
}

// RenderBatch joins items one per line without a trailing newline.
func RenderBatch(items []string) string {
	return strings.Join(items, "\n")
}

func RenderStats(s service.Stats, now time.Time) string {
	var b strings.Builder
	b.WriteString("Account Statistics\n\n")
	b.WriteString(fmt.Sprintf("Total Accounts Used: %d\n", s.Delivered))
	b.WriteString(fmt.Sprintf("Available Domains: %d\n", s.Categories))
	b.WriteString(fmt.Sprintf("Database Files: %d\n", s.Pools))
	b.WriteString(fmt.Sprintf("Daily Limit: %d accounts/day\n", s.Quota))
	b.WriteString(fmt.Sprintf("Batches Served: %d\n\n", s.Batches))
	b.WriteString(fmt.Sprintf("Last updated: %s\n", now.Format(stampLayout)))
	return b.String()
}

func RenderUsers(r access.UserReport) string {
	var b strings.Builder
	b.WriteString("User Logs:\n\n")
	for _, u := range r.Users {
		status := "Lifetime"
		switch u.Status {
		case access.StatusExpired:
			status = "Expired"
		case access.StatusActive:
			status = u.Expiry.Time().Format(stampLayout)
		}
		b.WriteString(fmt.Sprintf("%s - %s\n", u.User, status))
	}
	b.WriteString(fmt.Sprintf("\nActive: %d\nExpired: %d\n", r.Active, r.Expired))
	return b.String()
}
