package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	pubnub "github.com/pubnub/go/v7"

	"ticket-storefront/internal/status"
	"ticket-storefront/models"
)

type Config struct {
	SubscribeKey string
	SecretKey    string
	CipherKey    string
	UUID         string
	Channel      string
}

// StatusUpdater records the payment status of a placed order.
type StatusUpdater interface {
	UpdatePaymentStatus(ctx context.Context, orderID int64, paymentStatus string) error
}

// Watcher listens on the payment notification channel and applies each
// notification to the matching receipt.
type Watcher struct {
	channel  string
	pn       *pubnub.PubNub
	listener *pubnub.Listener
	receipts StatusUpdater
	logger   *slog.Logger
}

func NewWatcher(cfg Config, receipts StatusUpdater) *Watcher {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UUID))
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey
	pnCfg.CipherKey = cfg.CipherKey

	return &Watcher{
		channel:  cfg.Channel,
		pn:       pubnub.NewPubNub(pnCfg),
		listener: pubnub.NewListener(),
		receipts: receipts,
		logger:   slog.Default(),
	}
}

// Run subscribes and processes notifications until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.pn.AddListener(w.listener)
	w.pn.Subscribe().Channels([]string{w.channel}).Execute()
	defer func() {
		w.pn.UnsubscribeAll()
		w.pn.RemoveListener(w.listener)
	}()

	w.logger.Info("payment watcher subscribed", "channel", w.channel)

	for {
		select {
		case st := <-w.listener.Status:
			w.logStatus(st)

		case msg := <-w.listener.Message:
			if err := w.handle(ctx, msg); err != nil {
				w.logger.Error("payment notification", "channel", w.channel, "error", err)
			}

		case <-w.listener.Presence:

		case <-ctx.Done():
			w.logger.Info("payment watcher stopped")
			return
		}
	}
}

func (w *Watcher) logStatus(st *pubnub.PNStatus) {
	switch st.Category {
	case pubnub.PNConnectedCategory:
		w.logger.Info("connected to pubnub")
	case pubnub.PNReconnectedCategory:
		w.logger.Info("reconnected to pubnub")
	case pubnub.PNDisconnectedCategory:
		w.logger.Warn("disconnected from pubnub")
	case pubnub.PNAccessDeniedCategory:
		w.logger.Error("pubnub access denied", "channel", w.channel)
	case pubnub.PNReconnectionAttemptsExhausted:
		w.logger.Error("pubnub reconnection attempts exhausted")
	case pubnub.PNTimeoutCategory, pubnub.PNBadRequestCategory:
		w.logger.Warn("pubnub status", "category", st.Category)
	}
}

// handle applies one notification. Orders this storefront did not place are
// ignored.
func (w *Watcher) handle(ctx context.Context, msg *pubnub.PNMessage) error {
	n, err := decodeNotification(msg.Message)
	if err != nil {
		return err
	}
	if n.OrderID == 0 || n.Status == "" {
		return fmt.Errorf("notification without order or status: %+v", n)
	}

	err = w.receipts.UpdatePaymentStatus(ctx, n.OrderID, strings.ToUpper(n.Status))
	if errors.Is(err, status.ErrReceiptNotFound) {
		w.logger.Debug("payment notification for unknown order", "order_id", n.OrderID)
		return nil
	}
	if err != nil {
		return err
	}

	w.logger.Info("payment status updated", "order_id", n.OrderID, "order_no", n.OrderNo, "status", n.Status)
	return nil
}

// decodeNotification accepts the payload as a JSON string or as an already
// decoded object.
func decodeNotification(payload any) (*models.PaymentNotification, error) {
	var data []byte
	switch v := payload.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode notification: %w", err)
		}
		data = b
	}

	var n models.PaymentNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &n, nil
}
