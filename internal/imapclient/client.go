// Package imapclient wraps the IMAP session used to poll a user's inbox
// for bank notification emails.
package imapclient

import (
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
)

// Email is one fetched message: enough of the envelope for provenance
// plus the plain-text body for extraction.
type Email struct {
	UID     uint32
	Subject string
	From    string
	Date    time.Time
	Body    string
}

// Client is a single-mailbox IMAP session. Connect, fetch, mark, and
// disconnect; the processor owns the lifecycle.
type Client struct {
	server   string
	port     int
	username string
	password string
	conn     *client.Client
	logger   *zap.Logger
}

func New(server string, port int, username, password string, logger *zap.Logger) *Client {
	return &Client{
		server:   server,
		port:     port,
		username: username,
		password: password,
		logger:   logger,
	}
}

// Connect dials the server over TLS, logs in and selects INBOX.
func (c *Client) Connect() error {
	addr := fmt.Sprintf("%s:%d", c.server, c.port)

	conn, err := client.DialTLS(addr, &tls.Config{
		ServerName: c.server,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := conn.Login(c.username, c.password); err != nil {
		_ = conn.Logout()
		return fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	if _, err := conn.Select("INBOX", false); err != nil {
		_ = conn.Logout()
		return fmt.Errorf("failed to select INBOX: %w", err)
	}

	c.conn = conn
	c.logger.Info("Connected to IMAP server",
		zap.String("server", c.server),
		zap.String("username", c.username),
	)
	return nil
}

// Disconnect logs out of the session. Safe to call when never connected.
func (c *Client) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Logout()
	c.conn = nil
	return err
}

// UnreadSince fetches unseen messages received since the checkpoint,
// filtered to the given sender addresses (no filter when empty). A zero
// since means from the beginning of the mailbox. Bodies are fetched with
// BODY.PEEK so reading does not flip the unseen flag; only an explicit
// MarkProcessed does.
func (c *Client) UnreadSince(since time.Time, senders []string) ([]Email, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if !since.IsZero() {
		criteria.Since = since
	}

	uids, err := c.conn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search for unread messages: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.conn.UidFetch(seqset, items, messages)
	}()

	var emails []Email
	for msg := range messages {
		email := c.buildEmail(msg, section)
		if email == nil {
			continue
		}
		if len(senders) > 0 && !matchesSender(email.From, senders) {
			continue
		}
		emails = append(emails, *email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	c.logger.Info("Fetched unread messages",
		zap.Int("count", len(emails)),
		zap.Time("since", since),
	)
	return emails, nil
}

// MarkProcessed flags a message seen so the next poll skips it.
func (c *Client) MarkProcessed(uid uint32) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := c.conn.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark message %d seen: %w", uid, err)
	}
	return nil
}

func (c *Client) buildEmail(msg *imap.Message, section *imap.BodySectionName) *Email {
	if msg == nil || msg.Envelope == nil {
		return nil
	}

	email := &Email{
		UID:     msg.Uid,
		Subject: msg.Envelope.Subject,
		Date:    msg.Envelope.Date,
	}
	if len(msg.Envelope.From) > 0 {
		email.From = msg.Envelope.From[0].Address()
	}

	r := msg.GetBody(section)
	if r == nil {
		c.logger.Warn("Message has no body section", zap.Uint32("uid", msg.Uid))
		return email
	}

	body, err := extractTextBody(r)
	if err != nil {
		c.logger.Warn("Failed to parse message body",
			zap.Uint32("uid", msg.Uid),
			zap.Error(err),
		)
		return email
	}
	email.Body = body
	return email
}

// extractTextBody returns the first text/plain part, or the first text
// part of any kind when no plain part exists.
func extractTextBody(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", err
	}

	var fallback string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		if h, ok := p.Header.(*mail.InlineHeader); ok {
			ct, _, err := h.ContentType()
			if err != nil {
				continue
			}
			b, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}
			if ct == "text/plain" {
				return string(b), nil
			}
			if fallback == "" && strings.HasPrefix(ct, "text/") {
				fallback = string(b)
			}
		}
	}
	return fallback, nil
}

func matchesSender(from string, senders []string) bool {
	for _, s := range senders {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(from)) {
			return true
		}
	}
	return false
}
