package notification

import "fmt"

// OTPEmail is a rendered OTP verification message.
type OTPEmail struct {
	Subject string
	HTML    string
	Text    string
}

// RenderOTPEmail builds the verification mail for a login code.
func RenderOTPEmail(code, shopName string, expiresInMinutes int) OTPEmail {
	title := "Beautivo Login Code"
	if shopName != "" {
		title = shopName + " Login Code"
	}

	html := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; line-height: 1.5;">
			<h2>%s</h2>
			<p>Use the code below to complete your login. It expires in %d minutes.</p>
			<div style="font-size: 24px; font-weight: bold; letter-spacing: 4px; margin: 16px 0;">%s</div>
			<p>If you didn't request this, you can safely ignore this email.</p>
		</div>
	`, title, expiresInMinutes, code)

	return OTPEmail{
		Subject: fmt.Sprintf("Your verification code is %s", code),
		HTML:    html,
		Text:    fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, expiresInMinutes),
	}
}
