package notifications

import (
	"fmt"
	"html"
)

// Recipient is resolved by the caller before the notice is sent in the
// background, so notices never touch the database.
type Recipient struct {
	Name  string
	Email string
}

func PayoutApproved(to Recipient, amount, currency string) {
	SendEmail(to.Name, to.Email, "Your payout was approved",
		fmt.Sprintf("<p>Hi %s,</p><p>Your payout of %s %s has been approved and will be sent shortly.</p>",
			html.EscapeString(to.Name), amount, currency))
}

func PayoutRejected(to Recipient, amount, currency, reason string) {
	SendEmail(to.Name, to.Email, "Your payout was rejected",
		fmt.Sprintf("<p>Hi %s,</p><p>Your payout of %s %s was rejected.</p><p>Reason: %s</p>",
			html.EscapeString(to.Name), amount, currency, html.EscapeString(reason)))
}

func PayoutCompleted(to Recipient, amount, currency string) {
	SendEmail(to.Name, to.Email, "Your payout has been sent",
		fmt.Sprintf("<p>Hi %s,</p><p>%s %s is on its way to you.</p>", html.EscapeString(to.Name), amount, currency))
}

func PayoutFailed(to Recipient, amount, currency, reason string) {
	SendEmail(to.Name, to.Email, "Your payout could not be sent",
		fmt.Sprintf("<p>Hi %s,</p><p>We could not send %s %s: %s. Our team will retry it.</p>",
			html.EscapeString(to.Name), amount, currency, html.EscapeString(reason)))
}

func VerificationRequired(to Recipient) {
	SendEmail(to.Name, to.Email, "Verify your identity to receive payouts",
		fmt.Sprintf("<p>Hi %s,</p><p>Before we can release your payout we need to verify your identity. Please complete the verification we just started for you.</p>",
			html.EscapeString(to.Name)))
}

func DonationFailed(to Recipient, amount, currency, reason string, canRetry bool) {
	body := fmt.Sprintf("<p>Hi %s,</p><p>Your donation of %s %s did not go through. %s</p>",
		html.EscapeString(to.Name), amount, currency, html.EscapeString(reason))
	if canRetry {
		body += "<p>You can retry it from your donation page.</p>"
	}
	SendEmail(to.Name, to.Email, "Your donation did not go through", body)
}
