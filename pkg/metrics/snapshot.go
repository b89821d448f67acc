package metrics

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/common/expfmt"
)

// WriteText encodes every gathered family whose name starts with prefix in
// the Prometheus text format. An empty prefix writes all families.
func (m *Metrics) WriteText(w io.Writer, prefix string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), prefix) {
			continue
		}
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
