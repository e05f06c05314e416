// Package client is the typed API of the slmcal daemon.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	transport "github.com/charlie0129/slmcal/internal/client"
	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/events"
	"github.com/charlie0129/slmcal/pkg/version"
)

type Client struct {
	*transport.Client
}

func NewClient(socketPath string) *Client {
	return &Client{Client: transport.NewClient(socketPath)}
}

func getJSON[T any](ctx context.Context, c *Client, path, what string) (T, error) {
	var v T
	ret, err := c.Get(ctx, path)
	if err != nil {
		return v, pkgerrors.Wrapf(err, "failed to get %s", what)
	}
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return v, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return v, nil
}

func (c *Client) GetVersion(ctx context.Context) (version.Info, error) {
	return getJSON[version.Info](ctx, c, "/version", "version")
}

func (c *Client) GetStatus(ctx context.Context) (calibration.Status, error) {
	return getJSON[calibration.Status](ctx, c, "/status", "status")
}

// GetProcedures returns the procedures of the configured standard.
func (c *Client) GetProcedures(ctx context.Context) ([]calibration.Procedure, error) {
	return getJSON[[]calibration.Procedure](ctx, c, "/procedures", "procedures")
}

// GetConfig returns the calibration file loaded by the daemon, as YAML.
func (c *Client) GetConfig(ctx context.Context) (string, error) {
	ret, err := c.Get(ctx, "/config")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get config")
	}
	return ret, nil
}

func (c *Client) GetResults(ctx context.Context) ([]calibration.Table, error) {
	return getJSON[[]calibration.Table](ctx, c, "/results", "results")
}

func (c *Client) GetNotices(ctx context.Context) ([]string, error) {
	return getJSON[[]string](ctx, c, "/notices", "notices")
}

// GetPrompt returns the prompt waiting for an answer, or nil.
func (c *Client) GetPrompt(ctx context.Context) (*calibration.Prompt, error) {
	ret, err := c.Get(ctx, "/prompt")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get prompt")
	}
	if strings.TrimSpace(ret) == "" {
		return nil, nil
	}
	var p calibration.Prompt
	if err := json.Unmarshal([]byte(ret), &p); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal prompt")
	}
	return &p, nil
}

// Answer answers prompt id, or the pending prompt when id is 0.
func (c *Client) Answer(ctx context.Context, id int64, answer string) error {
	payload, err := json.Marshal(map[string]any{"id": id, "answer": answer})
	if err != nil {
		return err
	}
	if _, err := c.Put(ctx, "/prompt", string(payload)); err != nil {
		return pkgerrors.Wrapf(err, "failed to answer prompt")
	}
	return nil
}

// StartRun starts the given procedures, or the whole standard when none are
// given, and returns the accepted plan.
func (c *Client) StartRun(ctx context.Context, ids ...calibration.Procedure) ([]calibration.Procedure, error) {
	payload, err := json.Marshal(map[string]any{"procedures": ids})
	if err != nil {
		return nil, err
	}
	ret, err := c.Post(ctx, "/run", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to start run")
	}
	var resp struct {
		Procedures []calibration.Procedure `json:"procedures"`
	}
	if err := json.Unmarshal([]byte(ret), &resp); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal run response")
	}
	return resp.Procedures, nil
}

func (c *Client) CancelRun(ctx context.Context) error {
	if _, err := c.Post(ctx, "/cancel", ""); err != nil {
		return pkgerrors.Wrapf(err, "failed to cancel run")
	}
	return nil
}

// SubscribeEvents streams daemon events until ctx is cancelled or the
// connection drops; the channel is closed then.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan events.Event, error) {
	body, err := c.Stream(ctx, "/events")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to subscribe to events")
	}

	out := make(chan events.Event)
	go func() {
		defer close(out)
		defer body.Close()
		err := ParseEvents(body, func(ev events.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warn("event stream ended")
		}
	}()
	return out, nil
}

// ParseEvents decodes a server-sent event stream and calls fn for every
// event until fn returns false or the stream ends. Events are separated by
// a blank line; only the event and data fields are kept.
func ParseEvents(r io.Reader, fn func(events.Event) bool) error {
	sc := bufio.NewScanner(r)
	var (
		name string
		data []string
	)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if len(data) > 0 {
				if !fn(events.Event{Name: name, Data: json.RawMessage(strings.Join(data, "\n"))}) {
					return nil
				}
			}
			name, data = "", nil
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
	return sc.Err()
}
