package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rxtech-lab/argo-signals/internal/alert"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
)

// messageSender is the part of telego.Bot the channel needs.
type messageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramChannel posts alerts as HTML messages to every configured chat.
type TelegramChannel struct {
	sender  messageSender
	chatIDs []int64
}

var _ Channel = (*TelegramChannel)(nil)

// NewTelegramChannel creates a bot for token. apiServer overrides the Bot API url when set.
func NewTelegramChannel(token string, chatIDs []int64, apiServer string) (*TelegramChannel, error) {
	if len(chatIDs) == 0 {
		return nil, errors.New(errors.ErrCodeChannelUnavailable, "telegram channel needs at least one chat id")
	}

	options := []telego.BotOption{telego.WithDiscardLogger()}
	if apiServer != "" {
		options = append(options, telego.WithAPIServer(apiServer))
	}

	bot, err := telego.NewBot(token, options...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeChannelUnavailable, "failed to create telegram bot", err)
	}

	return newTelegramChannel(bot, chatIDs), nil
}

func newTelegramChannel(sender messageSender, chatIDs []int64) *TelegramChannel {
	return &TelegramChannel{sender: sender, chatIDs: chatIDs}
}

func (c *TelegramChannel) Name() string {
	return "telegram"
}

// Send posts to every chat. It fails only when no chat was reached; the error is
// transient when the last failure was a rate limit, a server error or a network error.
func (c *TelegramChannel) Send(ctx context.Context, a types.Alert) (Response, error) {
	text := TelegramText(a)

	var (
		delivered int
		lastErr   error
		lastCode  int
	)

	for _, chatID := range c.chatIDs {
		params := tu.Message(tu.ID(chatID), text).
			WithParseMode(telego.ModeHTML).
			WithLinkPreviewOptions(&telego.LinkPreviewOptions{IsDisabled: true})

		_, err := c.sender.SendMessage(ctx, params)
		if err == nil {
			delivered++

			continue
		}

		lastCode, lastErr = classifyTelegramError(err)
	}

	if delivered == 0 && lastErr != nil {
		return Response{Code: lastCode, Body: lastErr.Error()}, lastErr
	}

	resp := Response{Code: 200, Body: fmt.Sprintf("delivered to %d/%d chats", delivered, len(c.chatIDs))}
	resp.Partial = delivered < len(c.chatIDs)

	return resp, nil
}

// classifyTelegramError returns the API error code and wraps retryable failures.
func classifyTelegramError(err error) (int, error) {
	var apiErr *telegoapi.Error
	if !errors.As(err, &apiErr) {
		return 0, Transient(err, 0)
	}

	code := apiErr.ErrorCode

	switch {
	case code == 429:
		after := time.Second
		if apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0 {
			after = time.Duration(apiErr.Parameters.RetryAfter) * time.Second
		}

		return code, Transient(err, after)
	case code >= 500:
		return code, Transient(err, 0)
	default:
		return code, err
	}
}

// TelegramText renders the alert as Telegram HTML.
func TelegramText(a types.Alert) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>%s</b> %s\n", html.EscapeString(a.Ticker), html.EscapeString(string(a.EventType)))
	fmt.Fprintf(&b, "Window: %s\n", html.EscapeString(a.When))
	fmt.Fprintf(&b, "Price: %s\n", alert.FormatPrice(a.Price))
	fmt.Fprintf(&b, "Reason: %s", html.EscapeString(a.Explain))

	return b.String()
}
