package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"avatarmail/internal/domain"
	"avatarmail/internal/ports"
)

func TestMicCaptureStreamsStdout(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'pcm!'\nexec sleep 5\n")
	capture := NewMicCapture(script, nil)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 || !strings.Contains(string(buf[:n]), "pcm!") {
		t.Fatalf("unexpected read: %q err=%v", string(buf[:n]), readErr)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second stop must be a no-op, got %v", err)
	}
}

func TestMicCaptureStopKeepsFlushedOutputReadable(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "flush.sh", "#!/usr/bin/env bash\ntrap 'printf tail; exit 0' INT\nprintf head\nwhile :; do sleep 0.05; done\n")
	capture := NewMicCapture(script, nil)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer session.Close()

	head := make([]byte, 4)
	if _, err := io.ReadFull(session, head); err != nil || string(head) != "head" {
		t.Fatalf("unexpected first read: %q err=%v", string(head), err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	rest, err := io.ReadAll(session)
	if err != nil {
		t.Fatalf("drain after stop failed: %v", err)
	}
	if string(rest) != "tail" {
		t.Fatalf("frames written on interrupt were lost, got %q", string(rest))
	}
}

func TestMicCaptureDrainEndsWhenChildHoldsOutput(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "orphan.sh", "#!/usr/bin/env bash\nsleep 2 &\nexec sleep 5\n")
	capture := NewMicCapture(script, nil)
	capture.stopGrace = 100 * time.Millisecond

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer session.Close()

	started := time.Now()
	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if _, err := io.ReadAll(session); err != nil {
		t.Fatalf("drain must end cleanly, got %v", err)
	}
	if time.Since(started) > 1500*time.Millisecond {
		t.Fatalf("drain was not bounded by the stop grace")
	}
}

func TestMicCaptureDeviceFailureIncludesStderr(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'no such device' 1>&2\nexit 1\n")
	capture := NewMicCapture(script, nil)

	_, err := capture.Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, domain.ErrHardwareUnavailable) {
		t.Fatalf("expected hardware unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such device") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestMicCaptureStartHonorsDeadline(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "slow.sh", "#!/usr/bin/env bash\nexec sleep 5\n")
	capture := NewMicCapture(script, nil)
	capture.startupProbe = 2 * time.Second
	capture.stopGrace = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := capture.Start(ctx, ports.AudioConfig{})
	if !errors.Is(err, domain.ErrHardwareUnavailable) {
		t.Fatalf("expected hardware unavailable, got %v", err)
	}
	if time.Since(started) > 1500*time.Millisecond {
		t.Fatalf("start did not fail fast on deadline")
	}
}

func TestMicCaptureMissingBinary(t *testing.T) {
	t.Parallel()

	capture := NewMicCapture(filepath.Join(t.TempDir(), "no-such-ffmpeg"), nil)
	_, err := capture.Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, domain.ErrHardwareUnavailable) {
		t.Fatalf("expected hardware unavailable, got %v", err)
	}
}

func TestCaptureArgsUseConfiguredDevice(t *testing.T) {
	t.Parallel()

	args := strings.Join(captureArgs(withCaptureDefaults(ports.AudioConfig{InputDevice: "hw:1", SampleRate: 44100})), " ")
	for _, want := range []string{"-f pulse", "-i hw:1", "-ac 1", "-ar 44100", "-f s16le pipe:1"} {
		if !strings.Contains(args, want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}
}

func TestIgnoreExitStatus(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 3").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := ignoreExitStatus(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
	other := errors.New("pipe broke")
	if got := ignoreExitStatus(other); got != other {
		t.Fatalf("expected other errors to pass through, got %v", got)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	t.Parallel()

	buf := &tailBuffer{limit: 5}
	_, _ = buf.Write([]byte("abc"))
	_, _ = buf.Write([]byte("defg\n"))
	if got := buf.String(); got != "defg" {
		t.Fatalf("unexpected tail: %q", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
