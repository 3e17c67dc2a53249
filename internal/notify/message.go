package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/dukerupert/cadence/internal/cadence"
	"github.com/dukerupert/cadence/internal/email"
	"github.com/dukerupert/cadence/internal/model"
)

// RenderReminder builds the reminder email for a challenge whose owner has
// not uploaded today.
func RenderReminder(c model.Challenge, today cadence.TodayStatus, to, baseURL string) email.Message {
	title := c.Title
	if title == "" {
		title = "your challenge"
	}

	var subject, line string
	switch d := today.DaysUntilDeadline; {
	case d == nil:
		subject = fmt.Sprintf("Time to upload: %s", title)
		line = "You haven't uploaded anything today."
	case *d == 0:
		subject = fmt.Sprintf("Upload due today: %s", title)
		line = "Your next upload is due today."
	case *d > 0:
		subject = fmt.Sprintf("Next upload due in %s: %s", plural(*d, "day"), title)
		line = fmt.Sprintf("Your next upload is due in %s, on %s.", plural(*d, "day"), today.NextDeadline.UTC().Format("Mon Jan 2"))
	default:
		subject = fmt.Sprintf("Upload overdue by %s: %s", plural(-*d, "day"), title)
		line = fmt.Sprintf("Your upload was due %s ago.", plural(-*d, "day"))
	}

	stats := fmt.Sprintf("Current streak: %d. Points so far: %d.", c.StreakCount, c.PointsEarned)

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n%s\n", line, stats)
	link := ""
	if baseURL != "" {
		link = fmt.Sprintf("%s/challenges/%s", strings.TrimRight(baseURL, "/"), c.ID)
		fmt.Fprintf(&text, "\n%s\n", link)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<h2>%s</h2><p>%s</p><p>%s</p>", html.EscapeString(title), html.EscapeString(line), stats)
	if link != "" {
		fmt.Fprintf(&body, `<p><a href="%s">Open challenge</a></p>`, html.EscapeString(link))
	}

	return email.Message{
		To:       to,
		Subject:  subject,
		TextBody: text.String(),
		HTMLBody: body.String(),
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
