package log_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anondonation/log"
)

func TestLevelFiltering(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	previous := log.SetOutputForTest(&buf, log.LogLevelWarn)
	defer log.RestoreLogger(previous)

	log.Debugw("hidden debug", "k", 1)
	log.Infow("hidden info", "k", 2)
	log.Warnw("visible warning", "stage", "balance")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	c.Assert(lines, qt.HasLen, 1)

	var entry map[string]any
	c.Assert(json.Unmarshal([]byte(lines[0]), &entry), qt.IsNil)
	c.Assert(entry["message"], qt.Equals, "visible warning")
	c.Assert(entry["stage"], qt.Equals, "balance")
	c.Assert(entry["level"], qt.Equals, "warn")
	c.Assert(log.Level(), qt.Equals, log.LogLevelWarn)
}

func TestFingerprint(t *testing.T) {
	c := qt.New(t)
	secret := bytes.Repeat([]byte{0xAB}, 32)

	fp := log.Fingerprint(secret)
	c.Assert(fp, qt.Matches, `fp:[0-9a-f]{8}`)
	c.Assert(fp, qt.Equals, log.Fingerprint(secret))
	c.Assert(strings.Contains(fp, "abab"), qt.IsFalse)
	c.Assert(log.Fingerprint(nil), qt.Equals, "empty")
}
