package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/smtp"
	"net/textproto"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"github.com/stretchr/testify/suite"
)

func sampleAlert() types.Alert {
	return types.Alert{
		Ticker:    "FPT",
		EventType: types.AlertEventBuyNew,
		Price:     optional.Some(101.5),
		When:      "10:15",
		SlotStart: time.Date(2025, 3, 14, 10, 15, 0, 0, time.UTC),
		SlotEnd:   time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC),
		Explain:   "Breakout 5d; Vol spike≈1.20 <fast>",
	}
}

type fakeSender struct {
	errs  map[int64]error
	calls []*telego.SendMessageParams
}

func (f *fakeSender) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.calls = append(f.calls, params)

	if err := f.errs[params.ChatID.ID]; err != nil {
		return nil, err
	}

	return &telego.Message{MessageID: len(f.calls)}, nil
}

type TelegramChannelTestSuite struct {
	suite.Suite
}

func TestTelegramChannelSuite(t *testing.T) {
	suite.Run(t, new(TelegramChannelTestSuite))
}

func (suite *TelegramChannelTestSuite) TestText() {
	suite.Equal(
		"<b>FPT</b> BUY_NEW\nWindow: 10:15\nPrice: 101.50\nReason: Breakout 5d; Vol spike≈1.20 &lt;fast&gt;",
		TelegramText(sampleAlert()),
	)
}

func (suite *TelegramChannelTestSuite) TestSendToEveryChat() {
	sender := &fakeSender{}
	ch := newTelegramChannel(sender, []int64{1, 2})

	resp, err := ch.Send(context.Background(), sampleAlert())
	suite.Require().NoError(err)
	suite.False(resp.Partial)
	suite.Equal(200, resp.Code)

	suite.Require().Len(sender.calls, 2)
	suite.Equal(telego.ModeHTML, sender.calls[0].ParseMode)
	suite.True(sender.calls[0].LinkPreviewOptions.IsDisabled)
	suite.Equal(int64(2), sender.calls[1].ChatID.ID)
}

func (suite *TelegramChannelTestSuite) TestErrors() {
	tests := []struct {
		name       string
		errs       map[int64]error
		expectErr  bool
		transient  bool
		retryAfter time.Duration
		partial    bool
		code       int
	}{
		{
			name:       "rate limited honours retry_after",
			errs:       map[int64]error{1: fmt.Errorf("api: %w", &telegoapi.Error{ErrorCode: 429, Description: "Too Many Requests", Parameters: &telegoapi.ResponseParameters{RetryAfter: 7}})},
			expectErr:  true,
			transient:  true,
			retryAfter: 7 * time.Second,
			code:       429,
		},
		{
			name:      "server error is transient",
			errs:      map[int64]error{1: fmt.Errorf("api: %w", &telegoapi.Error{ErrorCode: 502, Description: "Bad Gateway"})},
			expectErr: true,
			transient: true,
			code:      502,
		},
		{
			name:      "bad request is permanent",
			errs:      map[int64]error{1: fmt.Errorf("api: %w", &telegoapi.Error{ErrorCode: 400, Description: "chat not found"})},
			expectErr: true,
			code:      400,
		},
		{
			name:      "network error is transient",
			errs:      map[int64]error{1: io.ErrUnexpectedEOF},
			expectErr: true,
			transient: true,
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			ch := newTelegramChannel(&fakeSender{errs: tc.errs}, []int64{1})

			resp, err := ch.Send(context.Background(), sampleAlert())
			suite.Require().Error(err)
			suite.Equal(tc.code, resp.Code)

			var transient *TransientError
			suite.Equal(tc.transient, errors.As(err, &transient))

			if tc.transient {
				suite.Equal(tc.retryAfter, transient.RetryAfter)
			}
		})
	}
}

func (suite *TelegramChannelTestSuite) TestPartialDelivery() {
	sender := &fakeSender{errs: map[int64]error{2: &telegoapi.Error{ErrorCode: 403, Description: "blocked"}}}
	ch := newTelegramChannel(sender, []int64{1, 2})

	resp, err := ch.Send(context.Background(), sampleAlert())
	suite.Require().NoError(err)
	suite.True(resp.Partial)
	suite.Equal("delivered to 1/2 chats", resp.Body)
}

func (suite *TelegramChannelTestSuite) TestNeedsChatIDs() {
	_, err := NewTelegramChannel("123:abc", nil, "")
	suite.True(errors.HasCode(err, errors.ErrCodeChannelUnavailable))
}

type fakeSMTP struct {
	authErr error
	rcptErr error
	auth    bool
	from    string
	rcpts   []string
	body    bytes.Buffer
	quit    bool
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func (f *fakeSMTP) Auth(smtp.Auth) error {
	f.auth = true

	return f.authErr
}

func (f *fakeSMTP) Mail(from string) error {
	f.from = from

	return nil
}

func (f *fakeSMTP) Rcpt(to string) error {
	if f.rcptErr != nil {
		return f.rcptErr
	}

	f.rcpts = append(f.rcpts, to)

	return nil
}

func (f *fakeSMTP) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&f.body}, nil
}

func (f *fakeSMTP) Quit() error {
	f.quit = true

	return nil
}

func (f *fakeSMTP) Close() error { return nil }

type EmailChannelTestSuite struct {
	suite.Suite
	smtp    *fakeSMTP
	channel *EmailChannel
}

func TestEmailChannelSuite(t *testing.T) {
	suite.Run(t, new(EmailChannelTestSuite))
}

func (suite *EmailChannelTestSuite) SetupTest() {
	ch, err := NewEmailChannel(EmailConfig{
		Host:     "smtp.example.com",
		Port:     465,
		Security: SecuritySSL,
		Username: "bot",
		Password: "secret",
		From:     "bot@example.com",
		To:       []string{"a@example.com", "b@example.com"},
		Env:      "prod",
	})
	suite.Require().NoError(err)

	suite.smtp = &fakeSMTP{}
	ch.dial = func(context.Context) (smtpClient, error) { return suite.smtp, nil }
	suite.channel = ch
}

func (suite *EmailChannelTestSuite) TestSubject() {
	suite.Equal("[FTU-DSTC Alerts] FPT BUY_NEW [prod]", suite.channel.Subject(sampleAlert()))

	suite.channel.config.SubjectPrefix = "[x] "
	suite.channel.config.Env = ""
	suite.Equal("[x] FPT BUY_NEW", suite.channel.Subject(sampleAlert()))
}

func (suite *EmailChannelTestSuite) TestSend() {
	resp, err := suite.channel.Send(context.Background(), sampleAlert())
	suite.Require().NoError(err)
	suite.Equal(250, resp.Code)

	suite.True(suite.smtp.auth)
	suite.True(suite.smtp.quit)
	suite.Equal("bot@example.com", suite.smtp.from)
	suite.Equal([]string{"a@example.com", "b@example.com"}, suite.smtp.rcpts)

	body := suite.smtp.body.String()
	suite.Contains(body, "To: a@example.com, b@example.com\r\n")
	suite.Contains(body, "Window: 10:15\r\n")
	suite.Contains(body, "Price: 101.50\r\n")
	suite.Contains(body, "Reason: Breakout 5d")
}

func (suite *EmailChannelTestSuite) TestMissingPrice() {
	a := sampleAlert()
	a.Price = optional.None[float64]()

	suite.Contains(suite.channel.Message(a), "Price: -\r\n")
}

func (suite *EmailChannelTestSuite) TestTransientCodes() {
	tests := []struct {
		name      string
		code      int
		transient bool
	}{
		{name: "421 service not available", code: 421, transient: true},
		{name: "450 mailbox busy", code: 450, transient: true},
		{name: "451 local error", code: 451, transient: true},
		{name: "452 insufficient storage", code: 452, transient: true},
		{name: "550 mailbox unavailable", code: 550, transient: false},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.smtp.rcptErr = &textproto.Error{Code: tc.code, Msg: "nope"}

			resp, err := suite.channel.Send(context.Background(), sampleAlert())
			suite.Require().Error(err)
			suite.Equal(tc.code, resp.Code)
			suite.Equal("nope", resp.Body)

			var transient *TransientError
			suite.Equal(tc.transient, errors.As(err, &transient))
		})
	}
}

func (suite *EmailChannelTestSuite) TestNeedsRecipients() {
	_, err := NewEmailChannel(EmailConfig{Host: "smtp.example.com", From: "bot@example.com"})
	suite.True(errors.HasCode(err, errors.ErrCodeChannelUnavailable))
}

func (suite *EmailChannelTestSuite) TestLogChannel() {
	ch := NewLogChannel(nil)
	suite.Equal("log", ch.Name())

	resp, err := ch.Send(context.Background(), sampleAlert())
	suite.Require().NoError(err)
	suite.Equal("logged", resp.Body)
}
