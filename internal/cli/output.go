package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Bibi40k/podnet-primitives/pkg/model"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	return nil
}

func printReport(w io.Writer, rep model.Report, jsonOut bool) error {
	if jsonOut {
		return writeJSON(w, rep)
	}
	writeReport(w, rep)
	return nil
}

func writeReport(w io.Writer, rep model.Report) {
	const (
		green = "\033[32m"
		red   = "\033[31m"
		cyan  = "\033[36m"
		reset = "\033[0m"
	)
	mark, color := "✓", green
	if !rep.Success {
		mark, color = "✗", red
	}
	fmt.Fprintf(w, "\n%s%s %s %s%s\n", color, mark, rep.Primitive, rep.Operation, reset)
	for _, m := range rep.Messages {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(m, "\n", "\n  "))
	}

	hosts := make([]string, 0, len(rep.Data))
	for h := range rep.Data {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	for _, h := range hosts {
		fmt.Fprintf(w, "\n  %s%s%s\n", cyan, h, reset)
		fields := make([]string, 0, len(rep.Data[h]))
		for f := range rep.Data[h] {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			v := rep.Data[h][f]
			if v == nil {
				fmt.Fprintf(w, "    %s: null\n", f)
				continue
			}
			if strings.Contains(*v, "\n") {
				fmt.Fprintf(w, "    %s: |\n      %s\n", f, strings.ReplaceAll(*v, "\n", "\n      "))
				continue
			}
			fmt.Fprintf(w, "    %s: %s\n", f, *v)
		}
	}
}
