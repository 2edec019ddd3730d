package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/fieldsync/replay"
)

func newReplayCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Replay a scripted edit session in virtual time.",
		Long: "Replay a scripted edit session in virtual time and print every " +
			"commit. The script's quiescence overrides the configured one.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := replay.Load(args[0])
			if err != nil {
				return err
			}

			if script.Quiescence == 0 {
				script.Quiescence = o.cfg.Quiescence
			}

			s, err := o.newSimulation(false)
			if err != nil {
				return err
			}
			defer closeAndLog(o.logger, "simulation", s.Terminate)

			result, err := replay.Run(script, s.Engine(), nil, s.Hooks()...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range result.Commits {
				fmt.Fprintf(out, "%s\t%s\t%q\n", c.At, c.Identity, c.Value)
			}

			fmt.Fprintf(out, "final\t%s\t%q\t%s\n",
				result.Final.Identity, result.Final.Value, result.Final.State)

			return nil
		},
	}
}
