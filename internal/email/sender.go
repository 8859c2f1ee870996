// Package email はSMTP経由のメール送信を提供する。
// 認証フローの確認・再設定メールと、巡回エンジンの新着通知メールを送信する。
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/hitoshi/wallert/internal/model"
)

// Config はSMTP接続とリンク生成の設定。
type Config struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	From         string
	// BaseURL はメール内のリンクの起点となるフロントエンドのURL。
	BaseURL string
}

// Sender はSMTPでメールを送信する。
// 送信失敗時の再送はこの層では行わない。
type Sender struct {
	config Config
	logger *slog.Logger
	// send はテストで差し替えるための送信フック。
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSender はSenderを生成する。
func NewSender(config Config, logger *slog.Logger) *Sender {
	return &Sender{
		config: config,
		logger: logger,
		send:   smtp.SendMail,
	}
}

var resetPasswordTmpl = template.Must(template.New("resetPassword").Parse(`<html>
<body>
<p>パスワード再設定のリクエストを受け付けました。</p>
<p>以下のリンクから新しいパスワードを設定してください。リンクの有効期限は短く設定されています。</p>
<p><a href="{{.Link}}">パスワードを再設定する</a></p>
<p>心当たりがない場合は、このメールを無視してください。</p>
</body>
</html>`))

var verifyEmailTmpl = template.Must(template.New("verifyEmail").Parse(`<html>
<body>
<p>メールアドレスの確認をお願いします。</p>
<p>以下のリンクを開いて、登録を続けてください。リンクの有効期限は短く設定されています。</p>
<p><a href="{{.Link}}">メールアドレスを確認する</a></p>
<p>心当たりがない場合は、このメールを無視してください。</p>
</body>
</html>`))

var newListingsTmpl = template.Must(template.New("newListings").Parse(`<html>
<body>
<p>「{{.Title}}」に新しい掲載があります。</p>
{{range .Listings}}<div>
<p><a href="{{.Link}}">{{.Title}}</a></p>
{{if .TopDescription}}<p>{{.TopDescription}}</p>{{end}}
{{if .MiddleDescription}}<p>{{.MiddleDescription}}</p>{{end}}
{{if .City}}<p>{{.City}}</p>{{end}}
</div>
{{end}}
</body>
</html>`))

// SendResetPassword はパスワード再設定メールを送信する。
func (s *Sender) SendResetPassword(ctx context.Context, to, resetToken string) error {
	link := s.config.BaseURL + "/reset-password?token=" + url.QueryEscape(resetToken)
	body, err := render(resetPasswordTmpl, struct{ Link string }{Link: link})
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, "パスワード再設定のご案内", body)
}

// SendVerifyEmail はメールアドレス確認メールを送信する。
func (s *Sender) SendVerifyEmail(ctx context.Context, to, verifyToken string) error {
	link := s.config.BaseURL + "/verify-email?token=" + url.QueryEscape(verifyToken)
	body, err := render(verifyEmailTmpl, struct{ Link string }{Link: link})
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, "メールアドレスの確認", body)
}

// SendNewListings は新着掲載の通知メールを送信する。
// 掲載テキストは取得時にサニタイズ済みで、テンプレートが再度エスケープする。
func (s *Sender) SendNewListings(ctx context.Context, to, trackTitle string, listings []*model.Listing) error {
	body, err := render(newListingsTmpl, struct {
		Title    string
		Listings []*model.Listing
	}{Title: trackTitle, Listings: listings})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("「%s」に新着%d件", trackTitle, len(listings))
	return s.deliver(ctx, to, subject, body)
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render mail template: %w", err)
	}
	return buf.String(), nil
}

// deliver はHTMLメールを組み立てて送信する。
// SMTPサーバーがSTARTTLSに対応していればsmtp.SendMailが自動的に暗号化する。
func (s *Sender) deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	msg.WriteString("From: " + s.config.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + encodeSubject(subject) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := net.JoinHostPort(s.config.SMTPHost, s.config.SMTPPort)
	var auth smtp.Auth
	if s.config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)
	}

	if err := s.send(addr, auth, s.config.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	s.logger.Debug("mail sent", "to", to, "subject", subject)
	return nil
}

// encodeSubject は件名をMIMEエンコードする。日本語件名の文字化けを防ぐ。
func encodeSubject(subject string) string {
	return mime.BEncoding.Encode("UTF-8", subject)
}
