package cli

import (
	"fmt"

	"recletter/internal/common"
	"recletter/internal/store"
	"recletter/internal/types"

	"github.com/spf13/cobra"
)

func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show, import or scaffold the program context",
	}
	cmd.AddCommand(newContextShowCmd())
	cmd.AddCommand(newContextImportCmd())
	cmd.AddCommand(newContextInitCmd())
	return cmd
}

func newContextShowCmd() *cobra.Command {
	var output common.CommandConfig
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the session's program context",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return prepareOutput(cmd, &output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			programCtx, err := resolveContext(cmd, nil)
			if err != nil {
				return err
			}
			return common.NewOutputHandler(getLoggerFromContext(cmd.Context())).HandleOutput(programCtx, output)
		},
	}
	addOutputFlags(cmd, &output)
	return cmd
}

func newContextImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [context-file]",
		Short: "Replace the session's program context with a YAML or JSON file",
		Long: `Replace the session's program context with a YAML or JSON file.
When the applicant, program, opportunity, qualities or anecdotes change,
custom questions carried over from the previous context are dropped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			programCtx, err := resolveContext(cmd, args)
			if err != nil {
				return err
			}
			s, cleanup, err := openSession(cmd, false)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := s.ImportContext(cmd.Context(), programCtx); err != nil {
				return err
			}
			getLoggerFromContext(cmd.Context()).Info("Context imported",
				"session", s.ID(), "file", args[0], "custom_questions", len(s.Context().CustomQuestions))
			return nil
		},
	}
}

func newContextInitCmd() *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default context as a YAML file to edit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := store.MarshalContextYAML(types.DefaultProgramContext())
			if err != nil {
				return err
			}
			if outputFile == "" {
				_, err = cmd.OutOrStdout().Write(raw)
				return err
			}
			fp := common.NewFileProcessor(getLoggerFromContext(cmd.Context()), 0, 0)
			if err := fp.ValidateOutputFile(outputFile); err != nil {
				return err
			}
			if err := fp.WriteFile(outputFile, string(raw)); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Context written to %s\n", outputFile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (default: stdout)")
	return cmd
}
