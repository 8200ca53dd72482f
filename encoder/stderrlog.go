package encoder

import (
	"bufio"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// logStderr reads the encoder child's stderr line-by-line and logs each
// line with a best-effort severity classification, rather than dumping raw
// lines at a single level.
func logStderr(r io.Reader, log zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		classifyAndLog(log, line)
	}
}

func classifyAndLog(log zerolog.Logger, line string) {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "fatal"):
		log.Error().Str("stream", "stderr").Msg(line)
	case strings.Contains(lower, "warn"):
		log.Warn().Str("stream", "stderr").Msg(line)
	default:
		log.Debug().Str("stream", "stderr").Msg(line)
	}
}
