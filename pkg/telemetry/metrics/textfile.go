package metrics

import (
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"github.com/prometheus/common/expfmt"
)

// WriteTextfile gathers the registry and writes it atomically to path in the
// Prometheus text exposition format, 0644 so the node-exporter textfile
// collector can read it. A nil collector is a no-op.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}

	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric family %q: %w", mf.GetName(), err)
		}
	}

	if err := atomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("failed to write metrics textfile %q: %w", path, err)
	}
	if err := os.Chmod(path, 0o644); err != nil {
		return fmt.Errorf("failed to set metrics textfile mode: %w", err)
	}
	return nil
}
