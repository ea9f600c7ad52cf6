package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/hitoshi/audiencia/internal/model"
	"github.com/hitoshi/audiencia/internal/security"
)

const (
	// confirmationSubject は確認メールの件名。
	confirmationSubject = "Confirmação de Inscrição"
	// confirmationText はプレーンテキスト版の本文。
	confirmationText = "Sua inscrição foi realizada com sucesso!"
)

// SMTPConfig はSMTP送信の設定を保持する。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string // 送信元アドレスを兼ねる
	Password string
}

// dialFunc はSMTPサーバーへの接続を確立する関数。
type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// SMTPNotifier は暗黙的TLS（SMTPS、ポート465）で確認メールを送信する。
type SMTPNotifier struct {
	cfg       SMTPConfig
	sanitizer security.ContentSanitizerService
	dial      dialFunc
}

// NewSMTPNotifier はSMTPNotifierを生成する。
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		Config: &tls.Config{
			ServerName: cfg.Host,
			MinVersion: tls.VersionTLS12,
		},
	}
	return &SMTPNotifier{
		cfg:       cfg,
		sanitizer: security.NewContentSanitizer(),
		dial:      dialer.DialContext,
	}
}

// NotifyRegistered は登録者のemail宛に確認メールを送信する。
// ctxのデッドラインは接続全体に適用される。
func (n *SMTPNotifier) NotifyRegistered(ctx context.Context, reg model.Registration) error {
	msg, err := n.buildMessage(reg)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	conn, err := n.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("SMTPサーバーへの接続に失敗しました: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTPセッションの開始に失敗しました: %w", err)
	}
	defer c.Close()

	if err := c.Auth(smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)); err != nil {
		return fmt.Errorf("SMTP認証に失敗しました: %w", err)
	}
	if err := c.Mail(n.cfg.Username); err != nil {
		return fmt.Errorf("送信元の指定に失敗しました: %w", err)
	}
	if err := c.Rcpt(reg.Email); err != nil {
		return fmt.Errorf("宛先の指定に失敗しました: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("本文送信の開始に失敗しました: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("本文の送信に失敗しました: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("本文の送信に失敗しました: %w", err)
	}

	return c.Quit()
}

// buildMessage はテキストとHTMLのmultipart/alternativeメッセージを組み立てる。
func (n *SMTPNotifier) buildMessage(reg model.Registration) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	textPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, fmt.Errorf("本文の組み立てに失敗しました: %w", err)
	}
	fmt.Fprintf(textPart, "Olá, %s!\r\n\r\n%s\r\n", reg.Name, confirmationText)

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, fmt.Errorf("本文の組み立てに失敗しました: %w", err)
	}
	html := fmt.Sprintf("<p>Olá, <strong>%s</strong>!</p><p>%s</p>",
		n.sanitizer.StripTags(reg.Name), confirmationText)
	htmlPart.Write([]byte(n.sanitizer.Sanitize(html)))

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("本文の組み立てに失敗しました: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.Username)
	fmt.Fprintf(&msg, "To: %s\r\n", reg.Email)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", confirmationSubject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	fmt.Fprintf(&msg, "\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}
