package logging

import (
	"bytes"
	"io"
	"net"
	"strconv"

	"github.com/logdyhq/logdy-core/logdy"
	"github.com/rs/zerolog/log"

	"capture-worker-go/internal/config"
)

// logdyWriter forwards each JSON log line to the embedded Logdy UI
type logdyWriter struct {
	logger logdy.Logdy
}

func (w *logdyWriter) Write(p []byte) (int, error) {
	line := bytes.TrimRight(p, "\n")
	if len(line) > 0 {
		w.logger.LogString(string(line))
	}
	return len(p), nil
}

func logdyAddr(cfg *config.Config) string {
	return net.JoinHostPort(cfg.LogdyHost, strconv.Itoa(cfg.LogdyPort))
}

// StartLogdy starts the Logdy web UI so a field operator can follow the
// recording from a browser on the device network
func StartLogdy(cfg *config.Config) (io.Writer, error) {
	ld := logdy.InitializeLogdy(logdy.Config{
		ServerIp:   cfg.LogdyHost,
		ServerPort: strconv.Itoa(cfg.LogdyPort),
	}, nil)

	log.Info().Str("url", "http://"+logdyAddr(cfg)).Msg("Logdy UI available")
	return &logdyWriter{logger: ld}, nil
}
