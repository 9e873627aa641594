package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Stream identifies where a chunk of output came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Chunk is a piece of remote output in arrival order for its stream.
type Chunk struct {
	Stream Stream
	Data   string
}

// OutputHandler receives chunks. It is never called concurrently.
type OutputHandler func(Chunk)

// Runner executes one composed script per call.
type Runner interface {
	Run(ctx context.Context, script string, onOutput OutputHandler) error
}

// SSHConfig is what a session needs to reach the build host.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	PrivateKey     string
	KnownHostsPath string
	DialTimeout    time.Duration
}

// SSHRunner opens a fresh connection and a single session for every Run.
type SSHRunner struct {
	cfg SSHConfig
	log *logrus.Entry
}

// NewSSHRunner returns a runner for cfg.
func NewSSHRunner(cfg SSHConfig, log *logrus.Entry) *SSHRunner {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.KnownHostsPath == "" {
		log.Warn("⚠️ SSH_KNOWN_HOSTS not set, host keys will not be verified")
	}
	return &SSHRunner{cfg: cfg, log: log}
}

func (r *SSHRunner) addr() string {
	return net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port))
}

func (r *SSHRunner) clientConfig() (*ssh.ClientConfig, error) {
	signer, err := ssh.ParsePrivateKey([]byte(r.cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if r.cfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(r.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            r.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         r.cfg.DialTimeout,
	}, nil
}

func (r *SSHRunner) dial(ctx context.Context) (*ssh.Client, error) {
	addr := r.addr()
	clientCfg, err := r.clientConfig()
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Stage: "auth", Err: err}
	}

	dialer := net.Dialer{Timeout: r.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Stage: "dial", Err: err}
	}

	_ = conn.SetDeadline(time.Now().Add(r.cfg.DialTimeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, &ConnectionError{Addr: addr, Stage: "handshake", Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

// Run executes script on the remote host and streams its output to onOutput.
// It returns nil on exit status 0, *ExecutionError on any other status,
// *ConnectionError if the session could not be established, and the
// context's error if ctx ended first.
func (r *SSHRunner) Run(ctx context.Context, script string, onOutput OutputHandler) error {
	client, err := r.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return &ConnectionError{Addr: r.addr(), Stage: "session", Err: err}
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return &ConnectionError{Addr: r.addr(), Stage: "session", Err: err}
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return &ConnectionError{Addr: r.addr(), Stage: "session", Err: err}
	}

	if err := session.Start(script); err != nil {
		return &ConnectionError{Addr: r.addr(), Stage: "exec", Err: err}
	}
	r.log.WithField("host", r.addr()).Debug("remote script started")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Signal(ssh.SIGKILL)
			_ = client.Close()
		case <-stop:
		}
	}()

	chunks := make(chan Chunk, 64)
	var wg sync.WaitGroup
	wg.Add(2)
	go pump(&wg, Stdout, stdout, chunks)
	go pump(&wg, Stderr, stderr, chunks)
	go func() {
		wg.Wait()
		close(chunks)
	}()

	for chunk := range chunks {
		if onOutput != nil {
			onOutput(chunk)
		}
	}

	waitErr := session.Wait()
	if ctx.Err() != nil {
		return fmt.Errorf("remote script aborted: %w", ctx.Err())
	}
	return exitError(r.addr(), waitErr)
}

func pump(wg *sync.WaitGroup, stream Stream, rd io.Reader, out chan<- Chunk) {
	defer wg.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := rd.Read(buf)
		if n > 0 {
			out <- Chunk{Stream: stream, Data: string(buf[:n])}
		}
		if err != nil {
			return
		}
	}
}

func exitError(addr string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &ExecutionError{ExitCode: exitErr.ExitStatus(), Signal: exitErr.Signal()}
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return &ExecutionError{ExitCode: -1}
	}
	return &ConnectionError{Addr: addr, Stage: "session", Err: err}
}
