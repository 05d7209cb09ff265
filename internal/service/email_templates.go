package service

import (
	"fmt"
	"html"
	"time"

	"github.com/pharmaelevate/portal-api/pkg/mailer"
)

const brandName = "PharmaElevate"

func otpMessage(to, name, code string, purpose OTPPurpose, ttl time.Duration) mailer.Message {
	subject := brandName + " verification code"
	intro := "Use the code below to verify your email address."
	if purpose == OTPPurposeReset {
		subject = brandName + " password reset code"
		intro = "Use the code below to reset your password. If you did not ask for this, ignore this email."
	}
	if name == "" {
		name = "there"
	}
	minutes := int(ttl.Minutes())

	text := fmt.Sprintf("Hi %s,\n\n%s\n\n    %s\n\nThe code expires in %d minutes.\n\n%s", name, intro, code, minutes, brandName)
	body := fmt.Sprintf(`<p>Hi %s,</p><p>%s</p><p style="font-size:28px;letter-spacing:6px;font-weight:bold">%s</p><p>The code expires in %d minutes.</p><p>%s</p>`,
		html.EscapeString(name), html.EscapeString(intro), code, minutes, brandName)

	return mailer.Message{To: to, Subject: subject, Text: text, HTML: body}
}
