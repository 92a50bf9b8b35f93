package inference

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"technotaggr/internal/config"
	"technotaggr/internal/fileutil"
	"technotaggr/internal/logging"
)

//go:embed bridge.py
var bridgeScript []byte

const stderrTailBytes = 8 << 10

// Conn is a running bridge: requests go to Stdin and responses come back on
// Stdout.
type Conn struct {
	Stdin  io.WriteCloser
	Stdout io.Reader
	// Stop terminates the bridge and releases its resources.
	Stop func() error
	// Diagnostics returns recent stderr output, if any.
	Diagnostics func() string
}

// Starter launches a bridge process.
type Starter interface {
	Start(ctx context.Context) (*Conn, error)
}

// StarterFunc adapts a function to Starter.
type StarterFunc func(ctx context.Context) (*Conn, error)

// Start implements Starter.
func (f StarterFunc) Start(ctx context.Context) (*Conn, error) {
	return f(ctx)
}

// UVXStarter runs the embedded bridge script with an ephemeral Python
// environment resolved by uvx.
type UVXStarter struct {
	Runner   string
	Packages []string
	CUDA     bool
	WorkDir  string
	Logger   *slog.Logger
}

// NewUVXStarter builds a starter from the inference configuration.
func NewUVXStarter(cfg *config.Config, logger *slog.Logger) *UVXStarter {
	return &UVXStarter{
		Runner:   cfg.Inference.Runner,
		Packages: append([]string(nil), cfg.Inference.Packages...),
		CUDA:     cfg.Inference.CUDAEnabled,
		WorkDir:  cfg.Paths.WorkDir,
		Logger:   logging.NewComponentLogger(logger, "bridge"),
	}
}

// Args returns the runner arguments for scriptPath.
func (s *UVXStarter) Args(scriptPath string) []string {
	args := []string{"--quiet"}
	for _, pkg := range s.Packages {
		if pkg = strings.TrimSpace(pkg); pkg != "" {
			args = append(args, "--with", pkg)
		}
	}
	return append(args, "python", scriptPath)
}

// Start writes the bridge script into the work directory and launches it.
// The process outlives ctx; it ends when Stop is called.
func (s *UVXStarter) Start(ctx context.Context) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	script, err := s.writeScript()
	if err != nil {
		return nil, err
	}
	runner := strings.TrimSpace(s.Runner)
	if runner == "" {
		runner = "uvx"
	}

	cmd := exec.Command(runner, s.Args(script)...) //nolint:gosec
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1", "TF_CPP_MIN_LOG_LEVEL=2")
	if !s.CUDA {
		cmd.Env = append(cmd.Env, "CUDA_VISIBLE_DEVICES=-1")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge stdout: %w", err)
	}
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", runner, err)
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger.Debug("bridge process started",
		logging.String("runner", runner),
		logging.Int("pid", cmd.Process.Pid),
		logging.Bool("cuda", s.CUDA),
	)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	var once sync.Once
	var stopErr error
	stop := func() error {
		once.Do(func() {
			_ = stdin.Close()
			select {
			case err := <-exited:
				stopErr = ignoreExit(err)
			case <-time.After(shutdownTimeout):
				_ = cmd.Process.Kill()
				<-exited
			}
		})
		return stopErr
	}
	return &Conn{Stdin: stdin, Stdout: stdout, Stop: stop, Diagnostics: stderr.String}, nil
}

func (s *UVXStarter) writeScript() (string, error) {
	dir := s.WorkDir
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create bridge work dir: %w", err)
	}
	sum := sha256.Sum256(bridgeScript)
	path := filepath.Join(dir, "bridge-"+hex.EncodeToString(sum[:6])+".py")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := fileutil.WriteAtomic(path, bridgeScript, 0o644); err != nil {
		return "", fmt.Errorf("write bridge script: %w", err)
	}
	return path, nil
}

func ignoreExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := strings.Split(strings.TrimSpace(string(b.buf)), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}
