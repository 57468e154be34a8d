package timeline

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"symbiosing/internal/instruction"
)

// WritePreview prints one row per instant and role, flagging instants that
// are out of order.
func WritePreview(out io.Writer, set *instruction.Set) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	fmt.Fprintln(w, "#\tTIME\tROLE\tACTION\tPWM\tPORTS\tNOTE")
	fmt.Fprintln(w, "-\t----\t----\t------\t---\t-----\t----")

	anomalies := make(map[int]bool)
	for _, i := range set.OrderingAnomalies() {
		anomalies[i] = true
	}

	for i, t := range set.Time {
		note := ""
		if anomalies[i] {
			note = "⚠️ out of order"
		}
		for _, tr := range set.Tracks {
			cmd := tr.Commands[i]
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
				i, t, tr.Role, cmd.Action, cmd.PumpPWM, portString(cmd.EffectivePorts()), note)
		}
	}

	if dups := set.DuplicateRoles(); len(dups) > 0 {
		fmt.Fprintf(w, "\nduplicate roles: %s\n", strings.Join(dups, ", "))
	}
	return w.Flush()
}

func portString(p instruction.Ports) string {
	open := p.Open()
	if len(open) == 0 {
		return "-"
	}
	parts := make([]string, len(open))
	for i, n := range open {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
