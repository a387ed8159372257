package node

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nholik/munin-update/internal/dump"
	"github.com/nholik/munin-update/internal/registry"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 30 * time.Second

	dialBackoffInitial    = 500 * time.Millisecond
	dialBackoffMax        = 5 * time.Second
	dialBackoffMaxElapsed = 15 * time.Second
)

// Client speaks the munin node protocol: a line-oriented TCP dialogue of
// list and config commands. One Client is shared by all workers; every
// Fetch opens its own connection.
type Client struct {
	logger  zerolog.Logger
	timeout time.Duration
}

// NewClient returns a node client with the given per-operation timeout.
func NewClient(logger zerolog.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		logger:  logger,
		timeout: timeout,
	}
}

// Fetch collects the configuration of every service advertised by the node.
func (c *Client) Fetch(ctx context.Context, host registry.Host) (map[string]*dump.ServiceConfig, error) {
	conn, err := c.dial(ctx, host.Addr())
	if err != nil {
		return nil, fmt.Errorf("dial node %s: %w", host.Addr(), err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Banner: "# munin node at <hostname>"
	if _, err := c.readLine(conn, reader); err != nil {
		return nil, fmt.Errorf("read banner from %s: %w", host.Name, err)
	}

	services, err := c.list(conn, reader, host.Name)
	if err != nil {
		return nil, fmt.Errorf("list services on %s: %w", host.Name, err)
	}

	configs := make(map[string]*dump.ServiceConfig, len(services))
	for _, service := range services {
		cfg, err := c.config(conn, reader, service)
		if err != nil {
			return nil, fmt.Errorf("config %s on %s: %w", service, host.Name, err)
		}
		configs[service] = cfg
	}

	_ = c.send(conn, "quit")
	return configs, nil
}

// dial connects with exponential backoff; each attempt is bounded by the
// per-operation timeout and the whole sequence by the retry budget and ctx.
func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	var conn net.Conn
	attempt := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		var err error
		conn, err = new(net.Dialer).DialContext(dialCtx, "tcp", addr)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = dialBackoffInitial
	policy.MaxInterval = dialBackoffMax
	policy.MaxElapsedTime = dialBackoffMaxElapsed

	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

// list asks the node for its service names, scoped to the host name.
func (c *Client) list(conn net.Conn, reader *bufio.Reader, hostName string) ([]string, error) {
	if err := c.send(conn, "list "+hostName); err != nil {
		return nil, err
	}
	line, err := c.readLine(conn, reader)
	if err != nil {
		return nil, err
	}
	return strings.Fields(line), nil
}

// config fetches one service's attribute lines. The node replies with
// "<key> <value>" lines terminated by a lone ".": keys split on '.' follow
// the same depth rule as the datafile codec.
func (c *Client) config(conn net.Conn, reader *bufio.Reader, service string) (*dump.ServiceConfig, error) {
	if err := c.send(conn, "config "+service); err != nil {
		return nil, err
	}

	cfg := dump.NewServiceConfig()
	for {
		line, err := c.readLine(conn, reader)
		if err != nil {
			return nil, err
		}
		if line == "." {
			return cfg, nil
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		cfg.SetPath(strings.Split(key, "."), strings.TrimSpace(value))
	}
}

func (c *Client) send(conn net.Conn, command string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(conn, "%s\n", command)
	return err
}

func (c *Client) readLine(conn net.Conn, reader *bufio.Reader) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
