// Package bus talks to GPIB instruments through a LAN-GPIB controller
// (Prologix GPIB-ETHERNET compatible) reached over a telnet session.
package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ziutek/telnet"
)

// DefaultPort is the controller's command port.
const DefaultPort = 1234

// Conn is a connection to one instrument.
type Conn interface {
	Write(ctx context.Context, cmd string) error
	// Read asks the instrument to talk and returns one line without its
	// terminator.
	Read(ctx context.Context) (string, error)
	Query(ctx context.Context, cmd string) (string, error)
}

// lineConn is the part of *telnet.Conn the controller needs.
type lineConn interface {
	Write(p []byte) (int, error)
	ReadString(delim byte) (string, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Controller multiplexes instruments on one GPIB bus. Every exchange
// readdresses the controller, so devices can be used in any order.
type Controller struct {
	mu      sync.Mutex
	conn    lineConn
	timeout time.Duration
	current int
}

// Dial connects to the controller at addr ("host" or "host:port").
func Dial(addr string, timeout time.Duration) (*Controller, error) {
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:%d", addr, DefaultPort)
	}
	conn, err := telnet.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to connect to GPIB controller %s", addr)
	}
	c := newController(conn, timeout)
	// Controller mode, no automatic read-after-write, LF terminated commands.
	for _, cmd := range []string{"++mode 1", "++auto 0", "++eos 2", "++eoi 1"} {
		if err := c.send(cmd); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	logrus.WithField("addr", addr).Info("connected to GPIB controller")
	return c, nil
}

func newController(conn lineConn, timeout time.Duration) *Controller {
	return &Controller{conn: conn, timeout: timeout, current: -1}
}

// Device returns a Conn bound to a primary GPIB address.
func (c *Controller) Device(address int) Conn {
	return &device{c: c, address: address}
}

func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

func (c *Controller) send(line string) error {
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %q", line)
	}
	return nil
}

func (c *Controller) selectDevice(address int) error {
	if c.current == address {
		return nil
	}
	if err := c.send(fmt.Sprintf("++addr %d", address)); err != nil {
		return err
	}
	c.current = address
	return nil
}

func (c *Controller) readLine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", pkgerrors.Wrap(err, "failed to set read deadline")
	}
	line, err := c.conn.ReadString('\n')
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to read from GPIB controller")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type device struct {
	c       *Controller
	address int
}

func (d *device) log(op, payload string) {
	logrus.WithFields(logrus.Fields{
		"gpib": d.address,
		"op":   op,
		"data": payload,
	}).Trace("gpib exchange")
}

func (d *device) Write(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.selectDevice(d.address); err != nil {
		return err
	}
	d.log("write", cmd)
	return d.c.send(cmd)
}

func (d *device) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	return d.read(ctx)
}

func (d *device) read(ctx context.Context) (string, error) {
	if err := d.c.selectDevice(d.address); err != nil {
		return "", err
	}
	if err := d.c.send("++read eoi"); err != nil {
		return "", err
	}
	line, err := d.c.readLine(ctx)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "gpib device %d", d.address)
	}
	d.log("read", line)
	return line, nil
}

func (d *device) Query(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.selectDevice(d.address); err != nil {
		return "", err
	}
	d.log("write", cmd)
	if err := d.c.send(cmd); err != nil {
		return "", err
	}
	return d.read(ctx)
}
