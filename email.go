package accounts

import "log"

// VerificationMessage is a rendered email ready for dispatch.
type VerificationMessage struct {
	Subject string
	Body    string
}

// EmailSender lets applications plug in their own SMTP transport.
// Dispatch failures surface as a generic error; the flow engine treats
// the send as fire-and-forget.
type EmailSender interface {
	RenderVerificationMessage(email, code string) VerificationMessage
	Send(message VerificationMessage, email string) error
}

// ConsoleEmailSender is a development implementation that logs messages
// instead of sending them.
type ConsoleEmailSender struct{}

func (c *ConsoleEmailSender) RenderVerificationMessage(email, code string) VerificationMessage {
	return VerificationMessage{
		Subject: "Your verification code",
		Body:    "Use this code to verify " + email + ": " + code,
	}
}

func (c *ConsoleEmailSender) Send(message VerificationMessage, email string) error {
	log.Printf("\n=== EMAIL ===")
	log.Printf("To: %s", email)
	log.Printf("Subject: %s", message.Subject)
	log.Printf("Body: %s", message.Body)
	log.Printf("=============\n")
	return nil
}
