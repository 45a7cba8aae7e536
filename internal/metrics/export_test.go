package metrics

import (
	"context"
	"net"
)

// ServeListener exposes serve for tests that need an ephemeral port.
func (m *Metrics) ServeListener(ctx context.Context, ln net.Listener) error {
	return m.serve(ctx, ln)
}
