package services

import (
	"fmt"
	"time"
)

// Shared email bodies so the SES and SMTP senders produce identical mail.

const emailStyle = `
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 28px; letter-spacing: 6px; font-weight: bold; text-align: center; padding: 16px; background-color: #f1f3f5; border-radius: 4px; }
        .content { padding: 20px 0; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
`

func codeEmailBody(title, intro, code string, expiry time.Duration) (string, string) {
	minutes := int(expiry.Minutes())

	html := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><style>%s</style></head>
<body>
    <div class="container">
        <div class="header"><h1>%s</h1></div>
        <div class="content">
            <p>%s</p>
            <div class="code">%s</div>
            <div class="warning">This code expires in %d minutes and can only be used once.</div>
            <p><strong>Didn't request this code?</strong><br>
            Someone may be trying to access your account. Do not share this code with anyone; AssurNet staff will never ask for it.</p>
        </div>
        <div class="footer"><p>This is an automated message. Please do not reply to this email.</p></div>
    </div>
</body>
</html>
`, emailStyle, title, intro, code, minutes)

	text := fmt.Sprintf(`%s

%s

Your code: %s

This code expires in %d minutes and can only be used once.

Didn't request this code? Someone may be trying to access your account.
Do not share this code with anyone; AssurNet staff will never ask for it.

This is an automated message. Please do not reply to this email.
`, title, intro, code, minutes)

	return html, text
}

func loginCodeEmail(code string, expiry time.Duration) (subject, html, text string) {
	subject = "Your AssurNet verification code"
	html, text = codeEmailBody(
		"Verification Code",
		"Use the code below to finish signing in to your AssurNet account:",
		code, expiry,
	)
	return subject, html, text
}

func registrationCodeEmail(code string, expiry time.Duration) (subject, html, text string) {
	subject = "Confirm your email address"
	html, text = codeEmailBody(
		"Confirm Your Email Address",
		"Use the code below to confirm this address and continue your AssurNet registration:",
		code, expiry,
	)
	return subject, html, text
}

func approvalEmail(tempPassword string) (subject, html, text string) {
	subject = "Your AssurNet account has been approved"

	html = fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><style>%s</style></head>
<body>
    <div class="container">
        <div class="header"><h1>Account Approved</h1></div>
        <div class="content">
            <p>Your registration request has been approved. Sign in with your email address and the temporary password below:</p>
            <div class="code">%s</div>
            <div class="warning">You will be required to choose a new password on first sign-in.</div>
        </div>
        <div class="footer"><p>This is an automated message. Please do not reply to this email.</p></div>
    </div>
</body>
</html>
`, emailStyle, tempPassword)

	text = fmt.Sprintf(`Account Approved

Your registration request has been approved. Sign in with your email address
and the temporary password below:

%s

You will be required to choose a new password on first sign-in.

This is an automated message. Please do not reply to this email.
`, tempPassword)

	return subject, html, text
}

func rejectionEmail(reason string) (subject, html, text string) {
	subject = "Update on your AssurNet registration request"

	body := "After review, your registration request was not approved."
	if reason != "" {
		body = fmt.Sprintf("After review, your registration request was not approved: %s.", reason)
	}

	html = fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><style>%s</style></head>
<body>
    <div class="container">
        <div class="header"><h1>Registration Request Reviewed</h1></div>
        <div class="content">
            <p>%s</p>
            <p>If you believe this is a mistake, please contact our support team with any supporting documents.</p>
        </div>
        <div class="footer"><p>This is an automated message. Please do not reply to this email.</p></div>
    </div>
</body>
</html>
`, emailStyle, body)

	text = fmt.Sprintf(`Registration Request Reviewed

%s

If you believe this is a mistake, please contact our support team with any
supporting documents.

This is an automated message. Please do not reply to this email.
`, body)

	return subject, html, text
}
