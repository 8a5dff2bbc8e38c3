package simulator

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/joluben/sigsim/internal/model"
)

type fakeGenerator struct {
	payload model.Payload
	err     error
}

func (g *fakeGenerator) Generate(deviceMetadata model.Payload) (model.Payload, error) {
	if g.err != nil {
		return nil, g.err
	}
	out := model.Payload{}
	for k, v := range g.payload {
		out[k] = v
	}
	return out, nil
}

// fakeConnector is a scriptable connector.Connector for the simulator's
// control-loop tests. connectErr/sendErr are returned on every call;
// failUntil, when > 0, makes Send fail (with sendErr, or a generic error
// when sendErr is nil) until callCount exceeds it, then succeed.
type fakeConnector struct {
	kind       model.TargetKind
	connectErr error
	sendErr    error
	failUntil  int32

	connectCalls atomic.Int32
	sendCalls    atomic.Int32
	disconnected atomic.Bool
}

func (c *fakeConnector) Connect(ctx context.Context) error {
	c.connectCalls.Add(1)
	return c.connectErr
}

func (c *fakeConnector) Send(ctx context.Context, payload model.Payload) error {
	n := c.sendCalls.Add(1)
	if c.failUntil > 0 {
		if n > c.failUntil {
			return nil
		}
		if c.sendErr == nil {
			return errors.New("transient send failure")
		}
	}
	return c.sendErr
}

func (c *fakeConnector) Disconnect(ctx context.Context) error {
	c.disconnected.Store(true)
	return nil
}

func (c *fakeConnector) Kind() model.TargetKind { return c.kind }
