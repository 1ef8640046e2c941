package tls12

import (
	"go.uber.org/zap"

	"github.com/pkg/errors"
)

// Constructs the two-byte alert payload.
func alertPayload(level AlertLevel, desc AlertDescription) []byte {
	return []byte{byte(level), byte(desc)}
}

// Emits an alert record. Protected like any other record once the local
// cipher spec is active.
func (c *Conn) sendAlert(level AlertLevel, desc AlertDescription) {
	c.log.Debug("sending alert",
		zap.String("level", level.String()),
		zap.String("description", desc.String()))
	if err := c.writeRecord(ContentAlert, alertPayload(level, desc)); err != nil {
		// A protection failure while alerting: nothing further to do, the
		// connection is going down either way.
		c.log.Warn("could not send alert", zap.Error(err))
	}
}

func (c *Conn) handleAlertRecord(payload []byte) error {
	if len(payload) < 2 {
		return c.fail(fatalf(KindBrokenPacket, "alert record of %d bytes", len(payload)))
	}

	level := AlertLevel(payload[0])
	desc := AlertDescription(payload[1])
	c.log.Debug("received alert",
		zap.String("level", level.String()),
		zap.String("description", desc.String()))

	c.obs.AlertReceived(c, level, desc)

	if desc == AlertCloseNotify {
		// Orderly shutdown, not a fault.
		c.closed = true
		c.ctx.destroySecrets()
		return nil
	}

	if level == AlertLevelCritical {
		c.ctx.criticalError = errors.Errorf("remote critical alert: %s", desc)
		c.ctx.destroySecrets()
		return c.ctx.criticalError
	}

	return nil
}
