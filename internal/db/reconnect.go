package db

import (
	"context"
	"time"

	"drivingschool-api/internal/metrics"
)

// noteFailure marks the pool unhealthy and schedules a background reconnect
// when err indicates a lost session. The failing call is never delayed.
func (m *Manager) noteFailure(err error) {
	if !isConnError(err) {
		return
	}
	m.log.Error().Err(err).Msg("database connection error")
	m.setHealthy(false)
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	if !m.reconnects.Allow() {
		return
	}
	if !m.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go m.reconnectLoop()
}

// reconnectLoop pings every ReconnectDelay until the server answers or the
// manager is closed.
func (m *Manager) reconnectLoop() {
	defer m.reconnecting.Store(false)

	t := time.NewTicker(m.cfg.ReconnectDelay)
	defer t.Stop()
	for {
		select {
		case <-m.closed:
			return
		case <-t.C:
		}

		m.log.Info().Msg("attempting database reconnect")
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ReconnectDelay)
		err := m.db.PingContext(ctx)
		cancel()
		metrics.RecordReconnect(err == nil)
		if err == nil {
			m.log.Info().Msg("database connection re-established")
			m.setHealthy(true)
			return
		}
		m.log.Error().Err(err).Msg("database reconnect failed")
	}
}
