package devenv

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

var ErrNoAdmin = fmt.Errorf("no member found in admin group")

// GroupLookup returns the members of a unix group on the deployment.
type GroupLookup interface {
	GroupMembers(ctx context.Context, group string) ([]string, error)
}

// ParseGroupEntry parses a `getent group` line, name:password:gid:members.
func ParseGroupEntry(line string) ([]string, error) {
	fields := strings.Split(strings.TrimSpace(line), ":")
	if len(fields) != 4 {
		return nil, fmt.Errorf("malformed group entry %q", line)
	}
	var members []string
	for _, m := range strings.Split(fields[3], ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			members = append(members, m)
		}
	}
	return members, nil
}

// FindAdmin returns the first member of the admin group.
func FindAdmin(ctx context.Context, lookup GroupLookup, group string) (string, error) {
	members, err := lookup.GroupMembers(ctx, group)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoAdmin, group)
	}
	return members[0], nil
}

// SSHLookup runs getent on a remote host. The host key must already be in
// the known_hosts file of the invoking user.
type SSHLookup struct {
	settings AdminSettings
}

func NewSSHLookup(settings AdminSettings) SSHLookup {
	return SSHLookup{settings: settings}
}

func (l SSHLookup) address() string {
	if _, _, err := net.SplitHostPort(l.settings.Host); err == nil {
		return l.settings.Host
	}
	return net.JoinHostPort(l.settings.Host, "22")
}

func (l SSHLookup) login() (string, error) {
	if l.settings.User != "" {
		return l.settings.User, nil
	}
	current, err := user.Current()
	if err != nil {
		return "", err
	}
	return current.Username, nil
}

// authMethods prefers the ssh agent and falls back to unencrypted default
// identities. The agent connection, if any, is returned for the caller to
// close once the handshake is over.
func authMethods(home string) ([]ssh.AuthMethod, net.Conn) {
	var methods []ssh.AuthMethod
	var agentConn net.Conn
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			agentConn = conn
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	var signers []ssh.Signer
	for _, name := range []string{"id_ed25519", "id_rsa"} {
		pem, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	return methods, agentConn
}

func (l SSHLookup) GroupMembers(ctx context.Context, group string) ([]string, error) {
	if l.settings.Host == "" {
		return nil, fmt.Errorf("admin lookup: no ssh host configured")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	hostKeys, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		return nil, fmt.Errorf("admin lookup: %w", err)
	}
	login, err := l.login()
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", l.address())
	if err != nil {
		return nil, fmt.Errorf("admin lookup: %w", err)
	}
	auth, agentConn := authMethods(home)
	if agentConn != nil {
		defer agentConn.Close()
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, l.address(), &ssh.ClientConfig{
		User:            login,
		Auth:            auth,
		HostKeyCallback: hostKeys,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("admin lookup: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	err = session.Run(fmt.Sprintf("getent group %s", shellQuote(group)))
	if err != nil {
		return nil, fmt.Errorf("admin lookup: getent group %s: %w: %s", group, err, strings.TrimSpace(stderr.String()))
	}
	return ParseGroupEntry(stdout.String())
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
