package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultKillGrace bounds how long Terminate waits between the graceful
// stop request and the forced kill.
const DefaultKillGrace = 5 * time.Second

// Command is a supervised FFmpeg invocation. The transcoded byte stream is
// consumed through StreamTo and termination follows a graceful signal, a
// bounded wait, then a forced kill addressed to the whole process group.
type Command struct {
	Binary    string
	Args      []string
	Input     string
	LogLevel  string
	KillGrace time.Duration

	// Process control
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	started time.Time
	doneCh  chan struct{}
	waitErr error
	mu      sync.RWMutex

	// Process monitoring
	monitor *ProcessMonitor

	// Stderr logging
	stderrLogPath string       // Path to write stderr log (empty = no file logging)
	stderrLines   []string     // Recent stderr lines for debugging
	stderrMu      sync.RWMutex // Protects stderrLines
	stderrDone    chan struct{}
}

// CommandBuilder builds FFmpeg relay commands with a fluent API.
type CommandBuilder struct {
	binary        string
	globalArgs    []string
	inputArgs     []string
	input         string
	outputArgs    []string
	output        string
	logLevel      string
	stderrLogPath string
	killGrace     time.Duration
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:    ffmpegPath,
		logLevel:  "error",
		killGrace: DefaultKillGrace,
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Reconnect enables automatic reconnection for network streams.
func (b *CommandBuilder) Reconnect() *CommandBuilder {
	b.inputArgs = append(b.inputArgs,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5")
	return b
}

// UserAgent sets the User-Agent header for HTTP inputs. Some stations gate
// on the client identity, so the relay fetch should present the same agent
// the probe did.
func (b *CommandBuilder) UserAgent(ua string) *CommandBuilder {
	if ua != "" {
		b.inputArgs = append(b.inputArgs, "-user_agent", ua)
	}
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs adds arbitrary input arguments.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// SampleRate sets the output sample rate in Hz.
func (b *CommandBuilder) SampleRate(hz int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ar", strconv.Itoa(hz))
	return b
}

// AudioChannels sets the number of audio channels.
func (b *CommandBuilder) AudioChannels(channels int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ac", strconv.Itoa(channels))
	return b
}

// Format sets the output container format.
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", format)
	return b
}

// FlushPackets enables immediate packet flushing for low latency.
func (b *CommandBuilder) FlushPackets() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-flush_packets", "1")
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// ApplyCustomInputOptions parses and applies custom input options string.
// Options are inserted after existing input args but before the -i input.
func (b *CommandBuilder) ApplyCustomInputOptions(opts string) *CommandBuilder {
	if opts == "" {
		return b
	}
	b.inputArgs = append(b.inputArgs, parseOptionsString(opts)...)
	return b
}

// ApplyCustomOutputOptions parses and applies custom output options string.
// Options are appended after existing output args.
func (b *CommandBuilder) ApplyCustomOutputOptions(opts string) *CommandBuilder {
	if opts == "" {
		return b
	}
	b.outputArgs = append(b.outputArgs, parseOptionsString(opts)...)
	return b
}

// StderrLogPath sets a file path to write FFmpeg stderr output for debugging.
func (b *CommandBuilder) StderrLogPath(path string) *CommandBuilder {
	b.stderrLogPath = path
	return b
}

// KillGrace sets the wait between the graceful stop request and the forced
// kill during termination.
func (b *CommandBuilder) KillGrace(d time.Duration) *CommandBuilder {
	if d > 0 {
		b.killGrace = d
	}
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	// Input args must precede -i to apply to the input
	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary:        b.binary,
		Args:          args,
		Input:         b.input,
		LogLevel:      b.logLevel,
		KillGrace:     b.killGrace,
		stderrLogPath: b.stderrLogPath,
		stderrLines:   make([]string, 0, 100),
	}
}

// parseOptionsString splits an options string respecting quotes.
func parseOptionsString(s string) []string {
	var result []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)
	escaped := false

	for _, r := range s {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}

		if r == '\\' {
			escaped = true
			continue
		}

		if r == '"' || r == '\'' {
			if !inQuote {
				inQuote = true
				quoteChar = r
			} else if r == quoteChar {
				inQuote = false
			} else {
				current.WriteRune(r)
			}
			continue
		}

		if r == ' ' && !inQuote {
			if current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
			continue
		}

		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Start spawns the FFmpeg process in its own process group, begins resource
// monitoring and stderr capture, and returns once the process is running.
// A start error means nothing was spawned and nothing needs cleanup.
func (c *Command) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return fmt.Errorf("command already started")
	}
	if c.KillGrace <= 0 {
		c.KillGrace = DefaultKillGrace
	}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	setProcessGroup(cmd)
	// Context cancellation asks the whole group to stop. WaitDelay forces
	// the issue and unblocks pipe readers if the request is ignored.
	cmd.Cancel = func() error {
		return signalGroup(cmd.Process.Pid, false)
	}
	cmd.WaitDelay = c.KillGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("getting stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	c.cmd = cmd
	c.stdout = stdout
	c.started = time.Now()
	c.doneCh = make(chan struct{})
	c.stderrDone = make(chan struct{})

	c.monitor = NewProcessMonitor(cmd.Process.Pid)
	c.monitor.Start()

	go c.captureStderr(stderr, c.stderrLogPath, c.stderrDone)
	go c.reap()

	return nil
}

// reap waits for process exit exactly once and publishes the result. Wait
// also closes the exec pipes, which ends the stderr capture.
func (c *Command) reap() {
	err := c.cmd.Wait()
	<-c.stderrDone
	c.stopMonitor()
	c.waitErr = err
	close(c.doneCh)
}

// StreamTo copies the transcoded byte stream into w until the process exits
// or the writer fails, then returns the exit status. Bytes are counted
// through the process monitor. Start must have been called.
//
// Backpressure is the writer's: when w blocks, the copy blocks, the pipe
// buffer fills and FFmpeg stalls on its own stdout write.
func (c *Command) StreamTo(w io.Writer) error {
	c.mu.RLock()
	stdout := c.stdout
	monitor := c.monitor
	c.mu.RUnlock()

	if stdout == nil {
		return fmt.Errorf("command not started")
	}

	_, copyErr := io.Copy(NewCountingWriter(w, monitor), stdout)
	waitErr := c.Wait()

	if waitErr != nil {
		return waitErr
	}
	return copyErr
}

// Wait blocks until the process has been reaped and returns its exit error.
func (c *Command) Wait() error {
	c.mu.RLock()
	done := c.doneCh
	c.mu.RUnlock()

	if done == nil {
		return fmt.Errorf("command not started")
	}

	<-done
	return c.waitErr
}

// Terminate stops the process group: graceful signal, bounded wait, forced
// kill. It returns only after the process has been reaped, so no zombie and
// no open pipe survives it. Safe to call repeatedly and after natural exit.
func (c *Command) Terminate(grace time.Duration) error {
	c.mu.RLock()
	cmd := c.cmd
	done := c.doneCh
	if grace <= 0 {
		grace = c.KillGrace
	}
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	select {
	case <-done:
		return nil
	default:
	}

	pid := cmd.Process.Pid
	_ = signalGroup(pid, false)

	select {
	case <-done:
		return nil
	case <-time.After(grace):
	}

	_ = signalGroup(pid, true)

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("ffmpeg pid %d not reaped after forced kill", pid)
	}
}

// Alive reports whether the transcoder process is still running. It is a
// cheap liveness probe suitable for polling.
func (c *Command) Alive() bool {
	c.mu.RLock()
	cmd := c.cmd
	done := c.doneCh
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return false
	}

	select {
	case <-done:
		return false
	default:
	}

	return processAlive(cmd.Process.Pid)
}

// Pid returns the process ID, or 0 if not started.
func (c *Command) Pid() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Duration returns how long the command has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// captureStderr reads FFmpeg stderr and optionally writes to a log file.
// It also stores recent lines for debugging.
func (c *Command) captureStderr(stderr io.ReadCloser, logPath string, done chan struct{}) {
	defer close(done)

	var logFile *os.File
	if logPath != "" {
		var err error
		logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			// Keep capturing to memory even without the file
			fmt.Fprintf(os.Stderr, "failed to open ffmpeg log file %s: %v\n", logPath, err)
		} else {
			defer logFile.Close()
			fmt.Fprintf(logFile, "\n=== FFmpeg session started at %s ===\n", time.Now().Format(time.RFC3339))
			fmt.Fprintf(logFile, "Command: %s\n\n", c.String())
		}
	}

	scanner := bufio.NewScanner(stderr)
	const maxLines = 100 // Keep last 100 lines in memory

	for scanner.Scan() {
		line := scanner.Text()

		c.stderrMu.Lock()
		if len(c.stderrLines) >= maxLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		c.stderrMu.Unlock()

		if logFile != nil {
			fmt.Fprintln(logFile, line)
		}
	}

	if logFile != nil {
		fmt.Fprintf(logFile, "\n=== FFmpeg session ended at %s ===\n", time.Now().Format(time.RFC3339))
	}
}

// GetStderrLines returns the recent stderr lines captured from FFmpeg.
func (c *Command) GetStderrLines() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// stopMonitor stops the process monitor if running.
func (c *Command) stopMonitor() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitor != nil {
		c.monitor.Stop()
	}
}

// ProcessStats returns the current process statistics. Returns nil if the
// command was never started.
func (c *Command) ProcessStats() *ProcessStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.monitor == nil {
		return nil
	}

	stats := c.monitor.Stats()
	return &stats
}

// Monitor returns the process monitor for direct access. Returns nil if
// monitoring is not active.
func (c *Command) Monitor() *ProcessMonitor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.monitor
}
