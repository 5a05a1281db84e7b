package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/tturner/eipcore/internal/progress"
)

type readFlags struct {
	tag        string
	elements   uint16
	fragmented bool
	progress   bool
}

func newReadCmd(g *globalFlags) *cobra.Command {
	flags := &readFlags{}

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a tag",
		Long: `Read a symbolic tag with Read_Tag (0x4C), or with Read_Tag_Fragmented
(0x52) when the value does not fit one reply.`,
		Example: `  # Read one DINT
  eipcore read --host 10.0.0.50 --tag Counter

  # Read a large array in fragments
  eipcore read --host 10.0.0.50 --tag Program:Main.Recipe --elements 500 --fragmented`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.tag == "" {
				return missingFlagError(cmd, "--tag")
			}
			return runRead(cmd, g, flags)
		},
	}

	cmd.Flags().StringVar(&flags.tag, "tag", "", "Symbolic tag name (required)")
	cmd.Flags().Uint16Var(&flags.elements, "elements", 1, "Element count")
	cmd.Flags().BoolVar(&flags.fragmented, "fragmented", false, "Use Read_Tag_Fragmented")
	cmd.Flags().BoolVar(&flags.progress, "progress", false, "Show fragmented transfer progress on stderr")
	return cmd
}

func runRead(cmd *cobra.Command, g *globalFlags, flags *readFlags) (err error) {
	path, err := tagPath(flags.tag)
	if err != nil {
		return err
	}
	s, err := openSession(cmd, g)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); err == nil {
			err = cerr
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if flags.fragmented {
		var bar *progress.Bar
		if flags.progress {
			bar = progress.New(cmd.ErrOrStderr(), "read "+flags.tag, 0)
		}
		value, err := s.fragmenter(bar).Read(ctx, path, flags.elements)
		if err != nil {
			return s.wrap(err, "read "+flags.tag)
		}
		bar.Finish()
		s.log.Verbose("read %s in %d rounds", flags.tag, value.Rounds)
		printValue(cmd.OutOrStdout(), flags.tag, value.Type, value.Data)
		return nil
	}

	dataType, data, err := s.client.ReadTag(ctx, path, flags.elements)
	if err != nil {
		return s.wrap(err, "read "+flags.tag)
	}
	printValue(cmd.OutOrStdout(), flags.tag, dataType, data)
	return nil
}

