package controller

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"reachflow/store"
	"reachflow/utils"
)

// StreamSequenceStats pushes sequence analytics over a websocket every few
// seconds until the client hangs up. Tenant identity comes from Locals, set
// by the auth middleware before the connection upgrade.
func StreamSequenceStats(st store.Store, logger *logrus.Logger) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		tenantID, ok := c.Locals("tenantID").(uint)
		if !ok {
			return
		}
		sequenceID := utils.ParseUint(c.Params("id"))
		if sequenceID == 0 {
			return
		}

		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		send := func() bool {
			stats, err := st.GetOrCreateAnalytics(tenantID, sequenceID)
			if err != nil {
				logger.WithError(err).WithField("sequence_id", sequenceID).Warn("Failed to load analytics for stream")
				return false
			}
			counts, err := st.CountEnrollmentsByStatus(tenantID, sequenceID)
			if err != nil {
				return false
			}
			payload := struct {
				SequenceID uint           `json:"sequence_id"`
				Analytics  interface{}    `json:"analytics"`
				ByStatus   map[string]int `json:"by_status"`
				At         time.Time      `json:"at"`
			}{
				SequenceID: sequenceID,
				Analytics:  stats,
				ByStatus:   counts,
				At:         time.Now().UTC(),
			}
			return c.WriteJSON(payload) == nil
		}

		if !send() {
			return
		}
		for range ticker.C {
			if !send() {
				return
			}
		}
	}
}
