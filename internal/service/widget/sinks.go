package widget

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LifecycleSink is notified when the window opens or closes and after every
// message is appended.
type LifecycleSink interface {
	OnOpen()
	OnClose()
	OnMessage(text string, isUser bool)
}

// LogSink logs lifecycle notifications and resolution errors.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink that logs under the widget's id.
func NewLogSink(widgetID string) *LogSink {
	return &LogSink{logger: log.With().Str("component", "widget").Str("widget", widgetID).Logger()}
}

func (s *LogSink) OnOpen()  { s.logger.Debug().Msg("opened") }
func (s *LogSink) OnClose() { s.logger.Debug().Msg("closed") }

func (s *LogSink) OnMessage(text string, isUser bool) {
	s.logger.Debug().Bool("isUser", isUser).Int("length", len(text)).Msg("message appended")
}

func (s *LogSink) OnError(err error) {
	s.logger.Warn().Err(err).Msg("response source failed")
}
