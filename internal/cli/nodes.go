package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/podnet-primitives/internal/podnet"
	"github.com/Bibi40k/podnet-primitives/internal/ssh"
)

// nodeStatus is one line of `nodes` output.
type nodeStatus struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Enabled   bool   `json:"enabled"`
	Reachable bool   `json:"reachable"`
	Attempts  int    `json:"attempts"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

func newNodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "Resolve the PodNet pair from config.json and check SSH reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(flags.logFormat, flags.logLevel)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			res, err := podnet.Resolve(cfg.PodNetConfig)
			if err != nil {
				return &userError{msg: err.Error(), hint: "Check --podnet-config or podnet_config in the robot config"}
			}

			checks := ssh.ProbeAll(cmd.Context(), []string{res.NodeA, res.NodeB}, ssh.ProbeOptions{
				Port:           cfg.SSH.Port,
				Attempts:       cfg.Timeouts.ProbeRetries,
				ConnectTimeout: cfg.Timeouts.ConnectDuration(),
				RetryDelay:     cfg.Timeouts.ProbeRetryDelay(),
			})
			statuses := nodeStatuses(res, checks)
			for _, s := range statuses {
				logger.Debug("node probed", "node", s.Name, "address", s.Address, "reachable", s.Reachable, "attempts", s.Attempts)
			}

			if flags.jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), statuses); err != nil {
					return err
				}
			} else {
				writeNodes(cmd.OutOrStdout(), res.Path, statuses)
			}
			for _, s := range statuses {
				if s.Enabled && !s.Reachable {
					return fmt.Errorf("%w: enabled PodNet %s is unreachable", errReportFailed, s.Address)
				}
			}
			return nil
		},
	}
}

func nodeStatuses(res podnet.Resolution, checks []ssh.Reachability) []nodeStatus {
	names := map[string]string{res.NodeA: podnet.NodeA, res.NodeB: podnet.NodeB}
	out := make([]nodeStatus, 0, len(checks))
	for _, c := range checks {
		s := nodeStatus{
			Name:      names[c.Host],
			Address:   c.Host,
			Enabled:   c.Host == res.Pair.Active,
			Reachable: c.Reachable(),
			Attempts:  c.Attempts,
			ElapsedMS: c.Elapsed.Milliseconds(),
		}
		if c.Err != nil {
			s.Error = c.Err.Error()
		}
		out = append(out, s)
	}
	return out
}

func writeNodes(w io.Writer, configPath string, statuses []nodeStatus) {
	fmt.Fprintf(w, "Config file: %s\n", configPath)
	for _, s := range statuses {
		state := "disabled"
		if s.Enabled {
			state = "enabled"
		}
		reach := "\033[32mreachable\033[0m"
		if !s.Reachable {
			reach = "\033[31munreachable\033[0m"
		}
		fmt.Fprintf(w, "  %-9s %-28s %-8s %s (%d attempts, %s)\n",
			s.Name, s.Address, state, reach, s.Attempts, (time.Duration(s.ElapsedMS) * time.Millisecond).String())
		if s.Error != "" {
			fmt.Fprintf(w, "            %s\n", s.Error)
		}
	}
}
