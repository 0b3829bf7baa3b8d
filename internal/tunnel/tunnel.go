// Package tunnel implements spec §4.1's optional SSH port-forward: when a
// DatabaseConfig carries tunnel settings, pgbackup dials the SSH server,
// opens a direct-tcpip channel to the database's real address, and
// exposes a local 127.0.0.1 endpoint the Connection component dials
// instead of the real host.
//
// Grounded on other_examples/fc11de1e_aqz236-port-fly's Session model
// (SSHConnectionConfig, TunnelConfig, *ssh.Client, net.Listener) —
// generalized from that model's general-purpose forwarding session into
// a single-purpose tunnel scoped to one backup/restore job.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"pgbackup/internal/config"
	"pgbackup/internal/logger"
	"pgbackup/internal/pgerr"
)

// Tunnel is an open SSH port-forward. LocalAddr is where the Connection
// component should dial instead of the database's real address.
type Tunnel struct {
	LocalAddr string

	client   *ssh.Client
	listener net.Listener
	log      logger.Logger

	closeOnce sync.Once
	wg        sync.WaitGroup
	closeErr  error
}

// Open dials the SSH server described by cfg, authenticates with the
// configured private key, and starts listening on 127.0.0.1:0 (an
// OS-assigned ephemeral port), forwarding every accepted connection to
// cfg.RemoteHost:cfg.RemotePort over the SSH session.
func Open(ctx context.Context, cfg *config.TunnelConfig, log logger.Logger) (*Tunnel, error) {
	if cfg == nil || cfg.SSHHost == "" {
		return nil, pgerr.Configuration(fmt.Errorf("tunnel: no ssh_host configured"))
	}

	signer, err := loadSigner(cfg.SSHKeyPath)
	if err != nil {
		return nil, pgerr.Connection(fmt.Errorf("tunnel: unreadable private key %s: %w", cfg.SSHKeyPath, err))
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint — the SSH server's host key is not verified
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(cfg.SSHHost, portOrDefault(cfg.SSHPort))
	dialer := net.Dialer{Timeout: sshConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, pgerr.Connection(fmt.Errorf("tunnel: dial ssh server %s: %w", addr, err))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, pgerr.Connection(fmt.Errorf("tunnel: ssh handshake with %s: %w", addr, err))
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, pgerr.Connection(fmt.Errorf("tunnel: bind local listener: %w", err))
	}

	t := &Tunnel{
		LocalAddr: listener.Addr().String(),
		client:    client,
		listener:  listener,
		log:       log,
	}

	t.wg.Add(1)
	go t.acceptLoop(cfg.RemoteHost, cfg.RemotePort)

	return t, nil
}

func portOrDefault(p int) string {
	if p == 0 {
		p = 22
	}
	return fmt.Sprintf("%d", p)
}

func loadSigner(keyPath string) (ssh.Signer, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(key)
}

// acceptLoop accepts local connections until the listener is closed and
// forwards each one to the remote database address over its own SSH
// channel, matching the port-fly session's one-channel-per-connection
// forwarding model.
func (t *Tunnel) acceptLoop(remoteHost string, remotePort int) {
	defer t.wg.Done()
	remoteAddr := net.JoinHostPort(remoteHost, fmt.Sprintf("%d", remotePort))

	for {
		localConn, err := t.listener.Accept()
		if err != nil {
			return // listener closed by Close()
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.forward(localConn, remoteAddr)
		}()
	}
}

func (t *Tunnel) forward(localConn net.Conn, remoteAddr string) {
	defer localConn.Close()

	remoteConn, err := t.client.Dial("tcp", remoteAddr)
	if err != nil {
		if t.log != nil {
			t.log.Warn("tunnel: failed to open channel to remote", "remote_addr", remoteAddr, "error", err)
		}
		return
	}
	defer remoteConn.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(remoteConn, localConn)
	}()
	go func() {
		defer wg.Done()
		io.Copy(localConn, remoteConn)
	}()
	wg.Wait()
}

// Close tears down the listener and the SSH client connection. Idempotent:
// calling Close more than once is safe and returns the same result.
func (t *Tunnel) Close() error {
	t.closeOnce.Do(func() {
		var errs []error
		if err := t.listener.Close(); err != nil {
			errs = append(errs, err)
		}
		t.wg.Wait()
		if err := t.client.Close(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			t.closeErr = fmt.Errorf("tunnel: close: %v", errs)
		}
	})
	return t.closeErr
}
