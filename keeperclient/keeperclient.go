// Package keeperclient reads state back out of a running keeper through the
// clickhouse keeper-client REPL. It is the read side of reconfiguration:
// after a membership change, the dynamic /keeper/config znode shows what the
// ensemble actually converged to.
package keeperclient

import (
	"bytes"
	"fmt"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client queries one keeper over its client port.
type Client struct {
	// Binary is the clickhouse executable to invoke, usually "clickhouse".
	Binary string

	// Port is the keeper's client port.
	Port uint16

	Logger *zap.Logger
}

// FetchConfig returns the ensemble membership stored at /keeper/config on
// the keeper. A keeper that was just started takes a moment to accept
// connections, so the exchange is retried with exponential backoff for up to
// maxElapsed before giving up.
func (c *Client) FetchConfig(maxElapsed time.Duration) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	var output string
	op := func() error {
		out, err := c.query("get /keeper/config")
		if err != nil {
			c.Logger.Debug("keeper not answering yet",
				zap.Uint16("port", c.Port), zap.Error(err))
			return err
		}
		output = out
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return "", errors.Wrapf(err, "failed to query keeper at port %d", c.Port)
	}

	return output, nil
}

func (c *Client) query(command string) (string, error) {
	cmd := exec.Command(c.Binary, "keeper-client", "--port", fmt.Sprintf("%d", c.Port))
	cmd.Stdin = bytes.NewBufferString(command + "\nexit\n")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "keeper-client failed at port %d", c.Port)
	}

	return stdout.String(), nil
}
