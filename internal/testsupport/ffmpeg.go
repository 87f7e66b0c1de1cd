package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// FakeFFmpeg writes an ffmpeg stand-in that creates its output file (the last
// argument) after printing a progress line. extra runs before the output is
// written, e.g. "sleep 30" or "exit 1".
func FakeFFmpeg(t testing.TB, extra string) string {
	t.Helper()
	script := `#!/bin/sh
if [ "$1" = "-version" ]; then
	echo "ffmpeg version 6.1-stub"
	exit 0
fi
for last; do :; done
printf 'frame=1 time=00:00:01.00 bitrate=1.0kbits/s speed=2.0x\r' >&2
` + extra + `
: > "$last"
`
	return writeScript(t, "ffmpeg", script)
}

// FakeFFprobe writes an ffprobe stand-in reporting a fixed duration in seconds.
func FakeFFprobe(t testing.TB, seconds string) string {
	t.Helper()
	script := `#!/bin/sh
if [ "$1" = "-version" ]; then
	echo "ffprobe version 6.1-stub"
	exit 0
fi
printf '{"streams":[{"index":0,"codec_type":"video"},{"index":1,"codec_type":"audio"}],"format":{"duration":"` + seconds + `"}}'
`
	return writeScript(t, "ffprobe", script)
}

func writeScript(t testing.TB, name, body string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
