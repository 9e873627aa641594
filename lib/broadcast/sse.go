package broadcast

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/deploykit/utils"
	"github.com/sirupsen/logrus"
)

const heartbeatPeriod = 15 * time.Second

// SSEClient streams a subscription as Server-Sent Events.
type SSEClient struct {
	writer  io.Writer
	flusher http.Flusher
	sub     *Subscription
	log     *logrus.Entry
}

// NewSSEClient builds an SSE client instance.
func NewSSEClient(writer io.Writer, flusher http.Flusher, sub *Subscription, log *logrus.Entry) *SSEClient {
	return &SSEClient{writer: writer, flusher: flusher, sub: sub, log: log.WithField("subscriber", sub.ID)}
}

// Run writes events until the final status event, the end of ctx or a failed
// write. The event name is the
// event type, so browsers can listen for "log" and "status" separately.
func (c *SSEClient) Run(ctx context.Context) {
	defer c.sub.Close()

	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.sub.Events():
			if !ok {
				return
			}
			if err := utils.WriteSSEEvent(c.writer, string(evt.Type), evt); err != nil {
				c.log.WithError(err).Warn("sse send failed")
				return
			}
			c.flusher.Flush()
			if evt.Final() {
				return
			}
		case <-ticker.C:
			if err := utils.WriteSSEComment(c.writer, "ping"); err != nil {
				return
			}
			c.flusher.Flush()
		}
	}
}
