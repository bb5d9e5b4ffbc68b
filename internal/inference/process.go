package inference

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// DefaultIdleTimeout is how long an unused model process is kept alive.
const DefaultIdleTimeout = 30 * time.Second

// ProcessConfig describes how to launch a model service process.
type ProcessConfig struct {
	// Command is the executable and its arguments. When empty the bundled
	// onnx_service.py is run with the virtualenv or system python.
	Command []string

	// Model is the path of the model file handed to the service.
	Model string

	// Env is appended to the environment of the service process.
	Env []string

	// IdleTimeout shuts the process down after this long without requests.
	IdleTimeout time.Duration
}

// ProcessSession implements Session by talking to a model service subprocess.
// Requests are length-prefixed JSON on stdin, replies one JSON line on stdout.
type ProcessSession struct {
	config    ProcessConfig
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

type processRequest struct {
	Model  string            `json:"model"`
	Inputs map[string]Tensor `json:"inputs"`
}

type processResponse struct {
	Outputs map[string]Tensor `json:"outputs"`
	Error   string            `json:"error,omitempty"`
}

// NewProcessSession creates a session. The process is started lazily on first Run.
func NewProcessSession(config ProcessConfig) (*ProcessSession, error) {
	if len(config.Command) == 0 {
		script := findServiceScript()
		if script == "" {
			return nil, fmt.Errorf("onnx_service.py not found")
		}
		python := findVenvPython()
		if python == "" {
			python = "python3"
		}
		config.Command = []string{python, script}
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	return &ProcessSession{config: config}, nil
}

// Run sends the inputs to the service and waits for its outputs.
// If ctx ends first the process is killed, since its reply stream is no longer in sync.
func (s *ProcessSession) Run(ctx context.Context, inputs map[string]Tensor) (map[string]Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(processRequest{Model: s.config.Model, Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	type reply struct {
		resp processResponse
		err  error
	}
	done := make(chan reply, 1)
	stdin, stdout := s.stdin, s.stdout
	go func() {
		resp, err := roundTrip(stdin, stdout, payload)
		done <- reply{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		s.kill()
		<-done
		s.shutdown()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			s.kill()
			s.shutdown()
			return nil, r.err
		}
		s.resetIdleTimer()
		if r.resp.Error != "" {
			return nil, fmt.Errorf("model service: %s", r.resp.Error)
		}
		return r.resp.Outputs, nil
	}
}

// Close shuts down the service process.
func (s *ProcessSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown()
}

func roundTrip(stdin io.Writer, stdout *bufio.Reader, payload []byte) (processResponse, error) {
	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(payload)))

	if _, err := stdin.Write(length); err != nil {
		return processResponse{}, fmt.Errorf("write length: %w", err)
	}
	if _, err := stdin.Write(payload); err != nil {
		return processResponse{}, fmt.Errorf("write data: %w", err)
	}

	line, err := stdout.ReadBytes('\n')
	if err != nil {
		return processResponse{}, fmt.Errorf("read response: %w", err)
	}

	var resp processResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return processResponse{}, fmt.Errorf("parse response: %w", err)
	}
	return resp, nil
}

func (s *ProcessSession) ensureStarted() error {
	if s.started {
		return nil
	}

	s.cmd = exec.Command(s.config.Command[0], s.config.Command[1:]...)
	s.cmd.Env = append(os.Environ(), s.config.Env...)

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	s.cmd.Stderr = os.Stderr

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start model service: %w", err)
	}

	s.stdin = stdin
	s.stdout = bufio.NewReaderSize(stdout, 1<<20)
	s.started = true

	return nil
}

// kill stops the process without waiting for it; shutdown reaps it.
func (s *ProcessSession) kill() {
	if s.started && s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

func (s *ProcessSession) shutdown() error {
	if !s.started {
		return nil
	}

	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}

	if s.stdin != nil {
		s.stdin.Close()
	}

	err := s.cmd.Wait()
	s.started = false
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Killed or closed processes exit non-zero; that is expected here.
		return nil
	}
	return err
}

func (s *ProcessSession) resetIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.config.IdleTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.shutdown()
	})
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/onnx_service.py",
		"../scripts/onnx_service.py",
		filepath.Join(execDir, "scripts/onnx_service.py"),
		filepath.Join(os.Getenv("HOME"), ".reptrack/scripts/onnx_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".reptrack/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
