package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// Email sends messages over an authenticated STARTTLS mail session.
type Email struct {
	Host     string
	Port     int // default 587
	Username string
	Password string
	From     string
	To       []string
	HTML     bool // send the body as text/html instead of text/plain
}

type attachment struct {
	filename string
	content  []byte
}

// Notify mails m to every recipient.
func (n *Email) Notify(ctx context.Context, m Message) error {
	return n.send(ctx, m, nil)
}

// NotifyWithAttachments mails m with the named files attached. Parts
// are named by base name.
func (n *Email) NotifyWithAttachments(ctx context.Context, m Message, paths ...string) error {
	atts := make([]attachment, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return xerrors.Errorf("failed to read attachment: %w", err)
		}
		atts = append(atts, attachment{filename: filepath.Base(p), content: b})
	}
	return n.send(ctx, m, atts)
}

func (n *Email) send(ctx context.Context, m Message, atts []attachment) error {
	msg, err := buildMessage(n.From, n.To, m, n.HTML, atts, time.Now())
	if err != nil {
		return xerrors.Errorf("failed to build message: %w", err)
	}

	port := n.Port
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(n.Host, strconv.Itoa(port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return xerrors.Errorf("failed to dial smtp server: %w", err)
	}

	c, err := smtp.NewClient(conn, n.Host)
	if err != nil {
		conn.Close()
		return xerrors.Errorf("failed to start smtp session: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.Host}); err != nil {
			return xerrors.Errorf("failed to start tls: %w", err)
		}
	}
	if n.Username != "" {
		auth := smtp.PlainAuth("", n.Username, n.Password, n.Host)
		if err := c.Auth(auth); err != nil {
			return xerrors.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := c.Mail(n.From); err != nil {
		return xerrors.Errorf("failed to set sender: %w", err)
	}
	for _, to := range n.To {
		if err := c.Rcpt(to); err != nil {
			return xerrors.Errorf("failed to add recipient %s: %w", to, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return xerrors.Errorf("failed to open message body: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return xerrors.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return xerrors.Errorf("failed to finish message: %w", err)
	}
	return c.Quit()
}

// buildMessage renders a multipart MIME mail: one text part in the
// requested flavor, then each attachment base64-encoded as an
// octet-stream with its filename.
func buildMessage(from string, to []string, m Message, html bool, atts []attachment, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mw.Boundary())

	contentType := "text/plain"
	if html {
		contentType = "text/html"
	}
	tp, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {contentType + `; charset="utf-8"`},
	})
	if err != nil {
		return nil, err
	}
	if _, err := tp.Write([]byte(m.Body)); err != nil {
		return nil, err
	}

	for _, a := range atts {
		ap, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"application/octet-stream"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf(`attachment; filename="%s"`, a.filename)},
		})
		if err != nil {
			return nil, err
		}
		if _, err := ap.Write(wrap76(base64.StdEncoding.EncodeToString(a.content))); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrap76 folds base64 text to the 76 character lines mail transports
// expect.
func wrap76(s string) []byte {
	var sb strings.Builder
	for len(s) > 76 {
		sb.WriteString(s[:76])
		sb.WriteString("\r\n")
		s = s[76:]
	}
	sb.WriteString(s)
	return []byte(sb.String())
}
