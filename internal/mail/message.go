package mail

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Message is one outbound email. HTML bodies only; templates are rendered by callers.
type Message struct {
	To          []string
	Subject     string
	HTML        string
	Attachments []Attachment
}

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Sender identifies the From header of every message.
type Sender struct {
	Address string
	Name    string
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return ErrNoRecipients
		}
	}
	return nil
}

// build renders the message for gomail and stamps a Message-ID, which gomail
// does not return from a send.
func (m Message) build(from Sender, host string) (*gomail.Message, string) {
	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), host)

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", from.Address, from.Name)
	msg.SetHeader("To", m.To...)
	msg.SetHeader("Subject", m.Subject)
	msg.SetHeader("Message-ID", id)
	msg.SetBody("text/html", m.HTML)

	for _, a := range m.Attachments {
		content := a.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {a.ContentType},
			}))
		}
		msg.Attach(a.Filename, settings...)
	}

	return msg, id
}
