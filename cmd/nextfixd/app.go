package main

import (
	"log/slog"

	"github.com/nextfix-go/nextfix/internal/session"
)

// loggingApplication is the reference session.Application the daemon
// attaches to every declarative session: it accepts every logon and
// every inbound application message, logging each callback: the
// administrative ones and resets at debug level, FromApp, OnLogon and
// OnLogout at info level. A real deployment would replace this with one that routes
// FromApp into an order book, a market data cache, or a message bus.
type loggingApplication struct {
	logger *slog.Logger
}

var _ session.ApplicationExtended = (*loggingApplication)(nil)

func newLoggingApplication(logger *slog.Logger) *loggingApplication {
	return &loggingApplication{logger: logger}
}

func (a *loggingApplication) ToAdmin(id session.ID, msg *session.Message) error {
	a.logger.Debug("to admin", slog.String("session", id.String()), slog.String("msg_type", msg.Header.MsgType))
	return nil
}

func (a *loggingApplication) FromAdmin(id session.ID, msg *session.Message) error {
	a.logger.Debug("from admin", slog.String("session", id.String()), slog.String("msg_type", msg.Header.MsgType))
	return nil
}

func (a *loggingApplication) ToApp(id session.ID, msg *session.Message) error {
	a.logger.Debug("to app", slog.String("session", id.String()), slog.String("msg_type", msg.Header.MsgType))
	return nil
}

func (a *loggingApplication) FromApp(id session.ID, msg *session.Message) error {
	a.logger.Info("from app",
		slog.String("session", id.String()),
		slog.String("msg_type", msg.Header.MsgType),
		slog.Int("seq", msg.Header.MsgSeqNum),
	)
	return nil
}

func (a *loggingApplication) OnLogon(id session.ID) {
	a.logger.Info("logged on", slog.String("session", id.String()))
}

func (a *loggingApplication) OnLogout(id session.ID) {
	a.logger.Info("logged out", slog.String("session", id.String()))
}

func (a *loggingApplication) CanLogon(session.ID) bool { return true }

func (a *loggingApplication) OnBeforeSessionReset(id session.ID) {
	a.logger.Debug("session reset", slog.String("session", id.String()))
}
