package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/wallet-sync/internal/metrics"
	"github.com/alexjbarnes/wallet-sync/internal/models"
)

// Drop reasons reported on the dropped-events metric.
const (
	dropUnparseable   = "unparseable"
	dropMissingFields = "missing_fields"
	dropInvalidStatus = "invalid_status"
	dropUnknownType   = "unknown_type"
)

// handleEvent applies one raw event to the store and returns its type.
// Malformed events are logged, counted and dropped; the returned type is
// empty for anything that was not recognised.
func (c *Client) handleEvent(data []byte) string {
	if !gjson.ValidBytes(data) {
		c.drop(dropUnparseable, "", slog.Int("bytes", len(data)))
		return ""
	}

	typ := gjson.GetBytes(data, "type")
	if typ.Type != gjson.String || typ.Str == "" {
		c.drop(dropMissingFields, "")
		return ""
	}

	switch typ.Str {
	case models.EventHeartbeat:
		metrics.StreamEvents.WithLabelValues(typ.Str).Inc()

	case models.EventConnectionEstablished:
		metrics.StreamEvents.WithLabelValues(typ.Str).Inc()
		userID := gjson.GetBytes(data, "userId").Str
		if c.cfg.UserID != "" && userID != "" && userID != c.cfg.UserID {
			c.logger.Warn("stream attached to unexpected user",
				slog.String("expected", c.cfg.UserID),
				slog.String("got", userID),
			)
			break
		}
		c.logger.Debug("stream session confirmed", slog.String("user_id", userID))

	case models.EventWalletSyncProgress:
		if !hasFields(data, "walletId", "status") || gjson.GetBytes(data, "progress").Type != gjson.Number {
			c.drop(dropMissingFields, typ.Str)
			return ""
		}
		ev, ok := c.decode(data, typ.Str)
		if !ok {
			return ""
		}
		c.applyProgress(ev)

	case models.EventWalletSyncCompleted:
		if !hasFields(data, "walletId") {
			c.drop(dropMissingFields, typ.Str)
			return ""
		}
		ev, ok := c.decode(data, typ.Str)
		if !ok {
			return ""
		}
		metrics.StreamEvents.WithLabelValues(typ.Str).Inc()
		if !c.store.MarkCompleted(ev.WalletID, ev.SyncedData, models.ParseEventTime(ev.CompletedAt)) {
			c.logger.Debug("completion ignored, wallet already terminal", slog.String("wallet_id", ev.WalletID))
		}

	case models.EventWalletSyncFailed:
		if !hasFields(data, "walletId") {
			c.drop(dropMissingFields, typ.Str)
			return ""
		}
		ev, ok := c.decode(data, typ.Str)
		if !ok {
			return ""
		}
		metrics.StreamEvents.WithLabelValues(typ.Str).Inc()
		msg := ev.Error
		if msg == "" {
			msg = ev.Message
		}
		if msg == "" {
			msg = "sync failed"
		}
		if c.store.MarkFailed(ev.WalletID, msg) {
			c.notify(fmt.Errorf("wallet %s: %s", ev.WalletID, msg))
		}

	default:
		c.drop(dropUnknownType, typ.Str)
		return ""
	}

	return typ.Str
}

func (c *Client) applyProgress(ev models.ProgressEvent) {
	status := models.SyncStatus(ev.Status)
	if !status.Valid() || status.IsTerminal() {
		c.drop(dropInvalidStatus, ev.Type, slog.String("status", ev.Status))
		return
	}

	metrics.StreamEvents.WithLabelValues(ev.Type).Inc()

	progress := int(math.Round(*ev.Progress))
	if !c.store.UpdateProgress(ev.WalletID, progress, status, ev.Message) {
		c.logger.Debug("progress ignored, wallet already terminal", slog.String("wallet_id", ev.WalletID))
		return
	}

	if ev.EstimatedTimeRemaining != nil && *ev.EstimatedTimeRemaining >= 0 {
		c.store.SetEstimatedRemaining(ev.WalletID, time.Duration(*ev.EstimatedTimeRemaining*float64(time.Second)))
	}
}

func (c *Client) decode(data []byte, typ string) (models.ProgressEvent, bool) {
	var ev models.ProgressEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.drop(dropUnparseable, typ, slog.String("error", err.Error()))
		return ev, false
	}

	return ev, true
}

// hasFields reports whether every path holds a non-empty string.
func hasFields(data []byte, paths ...string) bool {
	for _, r := range gjson.GetManyBytes(data, paths...) {
		if r.Type != gjson.String || r.Str == "" {
			return false
		}
	}

	return true
}

func (c *Client) drop(reason, typ string, attrs ...any) {
	metrics.StreamDroppedEvents.WithLabelValues(reason).Inc()

	attrs = append(attrs, slog.String("reason", reason))
	if typ != "" {
		attrs = append(attrs, slog.String("type", typ))
	}

	if reason == dropUnknownType {
		c.logger.Debug("ignoring stream event", attrs...)
		return
	}
	c.logger.Warn("dropping malformed stream event", attrs...)
}
