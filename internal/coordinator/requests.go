package coordinator

import (
	"time"

	"github.com/pkg/errors"

	"submesh/internal/kernel"
	"submesh/internal/message"
	"submesh/internal/requests"
)

// DefaultOneShotTimeout and DefaultTransactionTimeout are the fallback
// timeouts a Request/RequestCommand call uses when given timeout <= 0.
const (
	DefaultOneShotTimeout     = 5 * time.Second
	DefaultTransactionTimeout = 30 * time.Second
)

// Request performs a one-shot request/reply call: it registers a transient
// waiter at "<subsystem>://reply/<messageId>", stamps the outgoing
// envelope's mutable replyPath, sends it via SendProtected, and awaits the
// reply up to timeout. timeout <= 0 uses DefaultOneShotTimeout.
func (c *Coordinator) Request(callerPKR kernel.PKR, path string, body any, timeout time.Duration, opts ...message.Option) (any, error) {
	if timeout <= 0 {
		timeout = DefaultOneShotTimeout
	}
	env, err := c.Factory.Create(path, body, opts...)
	if err != nil {
		return nil, err
	}

	subsystemName := extractSubsystemName(path)
	replyPath := requests.ReplyPath(subsystemName, env.ID())
	env.UpdateMutable(map[string]any{"replyPath": replyPath})

	await := c.Kernel.Responses.Register(replyPath)

	res := c.SendProtected(callerPKR, env, nil)
	if !res.Success {
		_, _ = await(0) // drop the now-unreachable waiter rather than leak it
		return nil, failureError(res)
	}

	v, err := await(timeout)
	if err != nil {
		c.recordTimeout(subsystemName, path)
		return nil, err
	}
	return v, nil
}

// RequestCommand sends a command message and awaits its reply on a
// channel-correlated waiter, keyed by the command's auto-generated
// senderId. timeout <= 0 uses DefaultTransactionTimeout.
func (c *Coordinator) RequestCommand(callerPKR kernel.PKR, channelRoute string, body any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = DefaultTransactionTimeout
	}
	env, err := c.Factory.Create(channelRoute, body, message.WithType(message.TypeCommand))
	if err != nil {
		return nil, err
	}

	correlationID := env.Fixed().SenderID
	await := c.Kernel.Responses.RegisterCommand(correlationID)

	res := c.SendProtected(callerPKR, env, nil)
	if !res.Success {
		_, _ = await(0)
		return nil, failureError(res)
	}

	v, err := await(timeout)
	if err != nil {
		c.recordTimeout(extractSubsystemName(channelRoute), channelRoute)
		return nil, err
	}
	return v, nil
}

func (c *Coordinator) recordTimeout(subsystemName, path string) {
	c.Kernel.Errors.Record(requests.TimeoutError(subsystemName, path))
	if c.Metrics != nil {
		c.Metrics.RequestTimeouts.Inc()
	}
}

func failureError(res kernel.Result) error {
	if res.Error != nil {
		return errors.New(res.Error.Message)
	}
	return errors.New("request failed")
}
