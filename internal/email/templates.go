package email

import (
	"fmt"
	"html"
)

// BookingUpdate is what an account holder is told about a booking decision.
type BookingUpdate struct {
	BookingID   string
	DisplayName string
	AgencyID    string
	Quantity    int
	Status      string
	Reason      string
}

var statusHeadlines = map[string]string{
	"approved":  "Your cylinder booking is approved",
	"rejected":  "Your cylinder booking could not be approved",
	"cancelled": "Your cylinder booking was cancelled",
	"delivered": "Your cylinders have been delivered",
}

// BuildBookingUpdateSubject builds the subject line for a booking update email
func BuildBookingUpdateSubject(u BookingUpdate) string {
	headline, ok := statusHeadlines[u.Status]
	if !ok {
		headline = "Your cylinder booking was updated"
	}
	return fmt.Sprintf("%s (booking %s)", headline, shortID(u.BookingID))
}

// BuildBookingUpdateBody builds the HTML body for a booking update email
func BuildBookingUpdateBody(u BookingUpdate) string {
	reasonHTML := ""
	if u.Reason != "" {
		reasonHTML = fmt.Sprintf(`<p style="margin: 10px 0 0 0;"><strong>Reason:</strong> %s</p>`, html.EscapeString(u.Reason))
	}

	name := u.DisplayName
	if name == "" {
		name = "customer"
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #1f6feb; padding: 24px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 22px;">%s</h1>
	</div>

	<div style="background: #fff; padding: 24px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Hello %s,</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Booking</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
			<p style="margin: 10px 0 0 0;"><strong>Agency:</strong> %s</p>
			<p style="margin: 10px 0 0 0;"><strong>Cylinders:</strong> %d</p>
			<p style="margin: 10px 0 0 0;"><strong>Status:</strong> %s</p>
			%s
		</div>

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">This message was sent automatically. Please do not reply.</p>
	</div>
</body>
</html>`,
		html.EscapeString(BuildBookingUpdateSubject(u)),
		html.EscapeString(name),
		html.EscapeString(u.BookingID),
		html.EscapeString(u.AgencyID),
		u.Quantity,
		html.EscapeString(u.Status),
		reasonHTML,
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
