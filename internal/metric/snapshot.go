package metric

import (
	"fmt"
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

// Snapshot writes every metric in text exposition format. Catalog metrics
// without instances are still listed by their HELP and TYPE lines.
func (r *Registry) Snapshot(w io.Writer) error {
	mfs, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	families := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		families[mf.GetName()] = mf
	}

	catalog := make(map[string]struct{}, len(r.defs))
	for _, def := range r.defs {
		full := r.FullName(def.Name)
		catalog[full] = struct{}{}

		if mf, ok := families[full]; ok && len(mf.GetMetric()) > 0 {
			if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
				return fmt.Errorf("failed to encode %q: %w", full, err)
			}
			continue
		}

		if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n",
			full, helpEscaper.Replace(def.Help), full, def.Kind); err != nil {
			return err
		}
	}

	// Self metrics follow the catalog, in gather order.
	for _, mf := range mfs {
		if _, ok := catalog[mf.GetName()]; ok {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode %q: %w", mf.GetName(), err)
		}
	}

	return nil
}
