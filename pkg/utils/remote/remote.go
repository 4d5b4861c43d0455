// Copyright 2024 The saturn.io Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package remote runs shell commands on managed servers over ssh.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/utils"
)

// Target is a server reachable over ssh.
type Target struct {
	Name       string
	Host       string
	Port       int
	User       string
	PrivateKey string
}

func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// Executor runs commands on targets.
type Executor interface {
	// Run executes cmd and returns its combined output.
	Run(ctx context.Context, target Target, cmd string) (string, error)
	// Pipe streams stdout of srcCmd on src into stdin of dstCmd on dst.
	Pipe(ctx context.Context, src Target, srcCmd string, dst Target, dstCmd string) error
	// Stream streams stdout of cmd on target into w.
	Stream(ctx context.Context, target Target, cmd string, w io.Writer) error
	// Ping checks the target accepts ssh sessions.
	Ping(ctx context.Context, target Target) error
}

type Options struct {
	ConnectTimeout time.Duration `json:"connectTimeout" description:"ssh connect timeout"`
	KnownHostsFile string        `json:"knownHostsFile" description:"known_hosts file, host keys are not verified when empty"`
}

func NewDefaultOptions() *Options {
	return &Options{
		ConnectTimeout: 10 * time.Second,
	}
}

func (o *Options) RegistFlags(prefix string, fs *pflag.FlagSet) {
	fs.DurationVar(&o.ConnectTimeout, utils.JoinFlagName(prefix, "connect-timeout"), o.ConnectTimeout, "ssh connect timeout")
	fs.StringVar(&o.KnownHostsFile, utils.JoinFlagName(prefix, "known-hosts-file"), o.KnownHostsFile, "known_hosts file, host keys are not verified when empty")
}

type SSHExecutor struct {
	options *Options
}

var _ Executor = &SSHExecutor{}

func NewSSHExecutor(options *Options) *SSHExecutor {
	return &SSHExecutor{options: options}
}

func (e *SSHExecutor) clientConfig(target Target) (*ssh.ClientConfig, error) {
	signer, err := ssh.ParsePrivateKey([]byte(target.PrivateKey))
	if err != nil {
		return nil, errors.Wrapf(err, "parse private key of %s", target.Name)
	}
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if e.options.KnownHostsFile != "" {
		if hostKeyCallback, err = knownhosts.New(e.options.KnownHostsFile); err != nil {
			return nil, errors.Wrap(err, "load known hosts")
		}
	}
	user := target.User
	if user == "" {
		user = "root"
	}
	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         e.options.ConnectTimeout,
	}, nil
}

func (e *SSHExecutor) dial(ctx context.Context, target Target) (*ssh.Client, error) {
	cfg, err := e.clientConfig(target)
	if err != nil {
		return nil, err
	}
	dialer := net.Dialer{Timeout: e.options.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", target.Addr())
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, target.Addr(), cfg)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ssh handshake with %s", target.Addr())
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// closeOnDone closes c when ctx is cancelled so blocked sessions return.
func closeOnDone(ctx context.Context, c io.Closer) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (e *SSHExecutor) Run(ctx context.Context, target Target, cmd string) (string, error) {
	log.FromContextOrDiscard(ctx).V(1).Info("remote run", "server", target.Name, "cmd", cmd)
	client, err := e.dial(ctx, target)
	if err != nil {
		return "", err
	}
	defer client.Close()
	defer closeOnDone(ctx, client)()

	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	out, err := session.CombinedOutput(cmd)
	if err != nil {
		if ctx.Err() != nil {
			return string(out), ctx.Err()
		}
		return string(out), &CommandError{Cmd: cmd, Output: string(out), Err: err}
	}
	return string(out), nil
}

func (e *SSHExecutor) Stream(ctx context.Context, target Target, cmd string, w io.Writer) error {
	client, err := e.dial(ctx, target)
	if err != nil {
		return err
	}
	defer client.Close()
	defer closeOnDone(ctx, client)()

	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	stderr := &bytes.Buffer{}
	session.Stdout = w
	session.Stderr = stderr
	if err := session.Run(cmd); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &CommandError{Cmd: cmd, Output: stderr.String(), Err: err}
	}
	return nil
}

func (e *SSHExecutor) Pipe(ctx context.Context, src Target, srcCmd string, dst Target, dstCmd string) error {
	log.FromContextOrDiscard(ctx).Info("remote pipe", "from", src.Name, "to", dst.Name)
	dstClient, err := e.dial(ctx, dst)
	if err != nil {
		return err
	}
	defer dstClient.Close()
	defer closeOnDone(ctx, dstClient)()

	dstSession, err := dstClient.NewSession()
	if err != nil {
		return err
	}
	defer dstSession.Close()

	pr, pw := io.Pipe()
	dstStderr := &bytes.Buffer{}
	dstSession.Stdin = pr
	dstSession.Stderr = dstStderr
	if err := dstSession.Start(dstCmd); err != nil {
		return err
	}

	srcErr := e.Stream(ctx, src, srcCmd, pw)
	pw.CloseWithError(srcErr)

	dstErr := dstSession.Wait()
	if srcErr != nil {
		return errors.Wrap(srcErr, "source command")
	}
	if dstErr != nil {
		return errors.Wrap(&CommandError{Cmd: dstCmd, Output: dstStderr.String(), Err: dstErr}, "target command")
	}
	return nil
}

func (e *SSHExecutor) Ping(ctx context.Context, target Target) error {
	out, err := e.Run(ctx, target, "echo ok")
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) != "ok" {
		return fmt.Errorf("unexpected ping output %q", out)
	}
	return nil
}

type CommandError struct {
	Cmd    string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if len(out) > 512 {
		out = out[len(out)-512:]
	}
	return fmt.Sprintf("command failed: %v: %s", e.Err, out)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// DiskUsagePercent returns the usage percent of the filesystem holding path.
func DiskUsagePercent(ctx context.Context, exec Executor, target Target, path string) (int, error) {
	cmd := fmt.Sprintf("df -P %s | tail -1 | awk '{print $5}' | tr -d '%%'", utils.ShellQuote(path))
	out, err := exec.Run(ctx, target, cmd)
	if err != nil {
		return 0, err
	}
	percent, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, errors.Wrapf(err, "parse disk usage %q", out)
	}
	return percent, nil
}
