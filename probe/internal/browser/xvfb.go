package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	x11SocketDir = "/tmp/.X11-unix"
	displayWait  = 5 * time.Second
)

// display is an Xvfb server that headful Chrome renders into.
type display struct {
	name   string
	cmd    *exec.Cmd
	exited chan struct{}
	err    error // valid once exited is closed
}

// displaySocket maps an X display name such as ":99" or ":99.0" to the
// unix socket the server listens on.
func displaySocket(name string) (string, error) {
	num, ok := strings.CutPrefix(name, ":")
	if !ok {
		return "", fmt.Errorf("display %q: want :<number>", name)
	}
	num, _, _ = strings.Cut(num, ".")
	if _, err := strconv.Atoi(num); err != nil {
		return "", fmt.Errorf("display %q: %w", name, err)
	}
	return x11SocketDir + "/X" + num, nil
}

// startDisplay runs Xvfb on name and returns once its socket accepts
// clients, or fails if the server exits first.
func startDisplay(name string, logger *slog.Logger) (*display, error) {
	sock, err := displaySocket(name)
	if err != nil {
		return nil, err
	}

	d := &display{
		name:   name,
		cmd:    exec.Command("Xvfb", name, "-screen", "0", "1920x1080x24", "-nolisten", "tcp", "-ac"),
		exited: make(chan struct{}),
	}
	if err := d.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start xvfb: %w", err)
	}
	go func() {
		d.err = d.cmd.Wait()
		close(d.exited)
	}()

	if err := d.waitSocket(sock, displayWait); err != nil {
		d.stop()
		return nil, err
	}
	logger.Info("browser: xvfb started", "display", name, "pid", d.cmd.Process.Pid)
	return d, nil
}

func (d *display) waitSocket(sock string, within time.Duration) error {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(within)
	for {
		if _, err := os.Stat(sock); err == nil {
			return nil
		}
		select {
		case <-d.exited:
			return fmt.Errorf("xvfb on %s exited early: %v", d.name, d.err)
		case <-deadline:
			return fmt.Errorf("xvfb on %s: no socket after %s", d.name, within)
		case <-tick.C:
		}
	}
}

// stop kills the server and reaps it.
func (d *display) stop() error {
	select {
	case <-d.exited:
		return d.err
	default:
	}
	if err := d.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-d.exited
	return nil
}
