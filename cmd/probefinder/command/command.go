// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package command implements the probefinder command tree.
package command

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cihub/seelog"
	"github.com/spf13/cobra"

	"github.com/DataDog/probe-finder/pkg/finder"
	"github.com/DataDog/probe-finder/pkg/ir"
	"github.com/DataDog/probe-finder/pkg/util/log"
)

type options struct {
	binary       string
	sourcePrefix string
	verbose      bool
}

func (o *options) finderOptions() []finder.Option {
	var opts []finder.Option
	if o.sourcePrefix != "" {
		opts = append(opts, finder.WithSourcePrefix(o.sourcePrefix))
	}
	return opts
}

// MakeCommand returns the root probefinder command.
func MakeCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "probefinder",
		Short:         "Resolve source-level probe points against a binary's debug info",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if !opts.verbose {
				return nil
			}
			logger, err := seelog.LoggerFromWriterWithMinLevel(os.Stderr, seelog.DebugLvl)
			if err != nil {
				return err
			}
			log.SetupLogger(logger)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.binary, "binary", "b", "", "path of the binary to analyze")
	cmd.PersistentFlags().StringVarP(&opts.sourcePrefix, "source-prefix", "s", "", "directory prepended to the source paths recorded in the debug info")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	_ = cmd.MarkPersistentFlagRequired("binary")
	cmd.AddCommand(eventsCommand(opts), linesCommand(opts), addrCommand(opts))
	return cmd
}

func eventsCommand(opts *options) *cobra.Command {
	var maxEvents int
	cmd := &cobra.Command{
		Use:   "events DEFINITION [ARG]...",
		Short: "Resolve a probe definition into trace event descriptors",
		Long: `Resolve a probe definition into kprobe tracer commands.

The definition addresses a probe point as FUNC, FUNC+OFFSET, FUNC:LINE,
FUNC@FILE, FILE:LINE or FILE;PATTERN, optionally prefixed with
[GROUP/]EVENT= and suffixed with %return. Each further argument names a
variable to capture, optionally with a field chain and a :TYPE override.`,
		Example: `  probefinder -b ./a.out events do_work ctx->flags
  probefinder -b ./a.out events myevent=parse:3 len buf[0]:u8`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := ir.ParseProbeRequest(args)
			if err != nil {
				return err
			}
			tevs, err := finder.TraceEventsFromFile(opts.binary, req, maxEvents, opts.finderOptions()...)
			if err != nil {
				return err
			}
			if len(tevs) == 0 {
				return fmt.Errorf("no probe point found for %q", req.Point.String())
			}
			for i := range tevs {
				if tevs[i].Event == "" {
					tevs[i].Event = req.Point.DefaultEvent()
				}
				fmt.Fprintln(cmd.OutOrStdout(), tevs[i].Synthesize())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxEvents, "max-events", 16, "maximum number of trace events to emit")
	return cmd
}

func linesCommand(opts *options) *cobra.Command {
	var start, end int
	cmd := &cobra.Command{
		Use:   "lines TARGET",
		Short: "Show the probeable lines of a function or source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := &finder.LineQuery{Start: start, End: end}
			if strings.ContainsAny(args[0], "/.") {
				q.File = args[0]
			} else {
				q.Function = args[0]
			}
			lr, err := finder.LineRangeFromFile(opts.binary, q, opts.finderOptions()...)
			if err != nil {
				return err
			}
			if !lr.Found {
				return fmt.Errorf("no probeable lines found for %s", args[0])
			}
			for _, line := range lr.Lines {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%d\n", lr.Path, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "window start, relative to the declaration line for a function")
	cmd.Flags().IntVar(&end, "end", math.MaxInt32, "window end")
	return cmd
}

func addrCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "addr ADDRESS",
		Short: "Map a code address back to function and source line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := strconv.ParseUint(args[0], 0, 64)
			if err != nil {
				return fmt.Errorf("bad address %q: %w", args[0], err)
			}
			res, err := finder.ProbePointFromFile(opts.binary, addr, opts.finderOptions()...)
			if err != nil {
				return err
			}
			if !res.Found {
				return fmt.Errorf("no source information for address %#x", addr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatReverse(res))
			return nil
		},
	}
}

func formatReverse(res *ir.ReverseLookup) string {
	var b strings.Builder
	if res.Function != "" {
		b.WriteString(res.Function)
		if res.File != "" && res.Line != 0 {
			fmt.Fprintf(&b, ":%d", res.RelativeLine)
		} else {
			fmt.Fprintf(&b, "+%d", res.Offset)
		}
	}
	if res.File != "" {
		if b.Len() > 0 {
			b.WriteString("@")
		}
		fmt.Fprintf(&b, "%s:%d", res.File, res.Line)
	}
	return b.String()
}
