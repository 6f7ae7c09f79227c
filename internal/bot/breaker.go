package bot

import (
	"errors"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// breakerSender stops calling Telegram after repeated transport or server
// failures and lets a probe through once the timeout passes.
type breakerSender struct {
	next sender
	cb   *gobreaker.CircuitBreaker[any]
}

func newBreakerSender(next sender, log *zap.Logger) *breakerSender {
	return &breakerSender{
		next: next,
		cb: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "telegram",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			IsSuccessful: isDeliverySuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state changed",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

// isDeliverySuccess treats client errors reported by the Bot API, such as
// a user who blocked the bot, as a healthy API.
func isDeliverySuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code < http.StatusInternalServerError && apiErr.Code != http.StatusTooManyRequests
	}
	return false
}

func (s *breakerSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	res, err := s.cb.Execute(func() (any, error) {
		return s.next.Send(c)
	})
	msg, _ := res.(tgbotapi.Message)
	return msg, err
}

func (s *breakerSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	res, err := s.cb.Execute(func() (any, error) {
		return s.next.Request(c)
	})
	resp, _ := res.(*tgbotapi.APIResponse)
	return resp, err
}
