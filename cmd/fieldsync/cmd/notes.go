package cmd

import (
	"bufio"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/fieldsync/notes"
	"github.com/sarchlab/fieldsync/simulation"
)

func newNotesCmd(o *options) *cobra.Command {
	notesCmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage the notes of projects.",
	}

	notesCmd.AddCommand(
		newNotesCreateCmd(o),
		newNotesListCmd(o),
		newNotesShowCmd(o),
		newNotesEditCmd(o),
	)

	return notesCmd
}

func (o *options) openStore() (*notes.Store, error) {
	return notes.Open(o.cfg.DB)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid project id %q", arg)
	}

	return id, nil
}

func newNotesCreateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [notes]",
		Short: "Create a project and print its id.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := o.openStore()
			if err != nil {
				return err
			}
			defer closeAndLog(o.logger, "notes database", store.Close)

			text := ""
			if len(args) == 2 {
				text = args[1]
			}

			p, err := store.CreateProject(args[0], text)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), p.ID)

			return nil
		},
	}
}

func newNotesListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := o.openStore()
			if err != nil {
				return err
			}
			defer closeAndLog(o.logger, "notes database", store.Close)

			projects, err := store.Projects()
			if err != nil {
				return err
			}

			for _, p := range projects {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n",
					p.ID, p.Name, p.UpdatedAt.Format(time.RFC3339))
			}

			return nil
		},
	}
}

func newNotesShowCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the notes of a project.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			store, err := o.openStore()
			if err != nil {
				return err
			}
			defer closeAndLog(o.logger, "notes database", store.Close)

			p, err := store.Project(id)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), p.Notes)

			return nil
		},
	}
}

func newNotesEditCmd(o *options) *cobra.Command {
	var rich bool

	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit notes from standard input.",
		Long: "Every line read from standard input replaces the notes of the " +
			"project. Values are saved after the quiescence window, and " +
			"immediately when the input ends.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			store, err := o.openStore()
			if err != nil {
				return err
			}
			defer closeAndLog(o.logger, "notes database", store.Close)

			s, err := o.newSimulation(true)
			if err != nil {
				return err
			}
			defer closeAndLog(o.logger, "simulation", s.Terminate)

			builder := simulation.FieldBuilder[int64](s, "Notes")
			if rich {
				builder = builder.WithNormalizer(notes.NormalizeContent)
			}

			session := notes.NewSession(store, builder).WithLogger(o.logger)
			if _, err := session.Open(id); err != nil {
				return err
			}

			s.Track(session.Field())

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				if err := session.Edit(scanner.Text()); err != nil {
					return err
				}
			}

			session.Close()

			return scanner.Err()
		},
	}

	editCmd.Flags().BoolVar(&rich, "rich", false,
		"Upgrade plain-text notes to paragraphs before editing.")

	return editCmd
}
