package services

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/HKUDS/meshgate-go/pkg/mail"
)

const mailHelp = "Mail service help: send a message in the format:\n" +
	"@mail to: <recipient@email> subject: <subject> content: <text> [from: <your name>]\n" +
	"Example:\n@mail to: test@example.com subject: Test content: Hello world!\n"

var mailFieldRegex = regexp.MustCompile(`(?i)\b(to|from|subject|content):`)

// MailFields is a parsed @mail request.
type MailFields struct {
	To      string
	From    string
	Subject string
	Content string
}

// ParseMailFields extracts the to:, from:, subject: and content: fields.
// Fields may share one line or span several; content runs to the end of
// the message.
func ParseMailFields(text string) MailFields {
	var f MailFields
	locs := mailFieldRegex.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		end := len(text)
		key := strings.ToLower(text[loc[2]:loc[3]])
		if key != "content" && i+1 < len(locs) {
			end = locs[i+1][0]
		}
		value := strings.TrimSpace(text[loc[1]:end])
		switch key {
		case "to":
			f.To = value
		case "from":
			f.From = value
		case "subject":
			f.Subject = value
		case "content":
			f.Content = value
			return f
		}
	}
	return f
}

// Missing lists the required fields that are empty.
func (f MailFields) Missing() []string {
	var missing []string
	if f.To == "" {
		missing = append(missing, "to:")
	}
	if f.Subject == "" {
		missing = append(missing, "subject:")
	}
	if f.Content == "" {
		missing = append(missing, "content:")
	}
	return missing
}

// MailService sends e-mail on behalf of mesh users.
type MailService struct {
	out    Replier
	mailer mail.Mailer
	logger *slog.Logger
}

func NewMailService(out Replier, mailer mail.Mailer, logger *slog.Logger) *MailService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailService{out: out, mailer: mailer, logger: logger.With("component", "mail")}
}

func (s *MailService) Name() string        { return "mail" }
func (s *MailService) Description() string { return "Sends an e-mail." }

func (s *MailService) Handle(ctx context.Context, req Request) {
	f := ParseMailFields(req.Args)
	if missing := f.Missing(); len(missing) > 0 {
		s.logger.Info("mail message invalid", "from", req.From, "missing", missing)
		s.out.SendToNode(ctx, req.From, "Missing fields: "+strings.Join(missing, ", ")+"\n"+mailHelp)
		return
	}

	err := s.mailer.Send(ctx, mail.Message{
		Subject:    f.Subject,
		Body:       f.Content,
		To:         f.To,
		SenderName: f.From,
	})
	if err != nil {
		s.logger.Error("error while sending mail", "to", f.To, "error", err)
		s.out.SendToNode(ctx, req.From, "Error sending mail: "+err.Error())
		return
	}
	s.logger.Info("mail sent", "to", f.To, "subject", f.Subject)
	s.out.SendToNode(ctx, req.From, "Mail sent successfully!")
}
