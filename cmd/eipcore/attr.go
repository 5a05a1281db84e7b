package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
)

type attrFlags struct {
	class     string
	instance  string
	attribute string
}

func newAttrCmd(g *globalFlags) *cobra.Command {
	flags := &attrFlags{}

	cmd := &cobra.Command{
		Use:   "attr",
		Short: "Read one attribute with Get_Attribute_Single",
		Example: `  # Identity object vendor ID
  eipcore attr --host 10.0.0.50 --class 0x01 --instance 1 --attribute 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.class == "" {
				return missingFlagError(cmd, "--class")
			}
			if flags.instance == "" {
				return missingFlagError(cmd, "--instance")
			}
			return runAttr(cmd, g, flags)
		},
	}

	cmd.Flags().StringVar(&flags.class, "class", "", "CIP class ID (hex or decimal, required)")
	cmd.Flags().StringVar(&flags.instance, "instance", "", "CIP instance ID (hex or decimal, required)")
	cmd.Flags().StringVar(&flags.attribute, "attribute", "1", "CIP attribute ID (hex or decimal)")
	return cmd
}

func runAttr(cmd *cobra.Command, g *globalFlags, flags *attrFlags) (err error) {
	class, err := strconv.ParseUint(flags.class, 0, 16)
	if err != nil {
		return fmt.Errorf("parse class: %w", err)
	}
	instance, err := strconv.ParseUint(flags.instance, 0, 32)
	if err != nil {
		return fmt.Errorf("parse instance: %w", err)
	}
	attribute, err := strconv.ParseUint(flags.attribute, 0, 16)
	if err != nil {
		return fmt.Errorf("parse attribute: %w", err)
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

	data, err := s.client.GetAttributeSingle(ctx, uint16(class), uint32(instance), uint16(attribute))
	if err != nil {
		return s.wrap(err, fmt.Sprintf("get attribute 0x%02X/%d/%d", class, instance, attribute))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d bytes: % x\n", len(data), data)
	return nil
}
