package app

import (
	"context"
	goflag "flag"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/pmlproject9/lbset/pkg/config"
	"github.com/pmlproject9/lbset/pkg/ipset"
)

var (
	cmdName = "ipsetctl"

	errNotInSet = errors.New("entry is not in set")
)

func NewIPSetCtl(ctx context.Context) *cobra.Command {
	opts := NewOptions()
	cmd := &cobra.Command{
		Use:           cmdName,
		Long:          `Load hash ipsets from a restore file and query them in-process`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.Flags().VisitAll(func(flag *pflag.Flag) {
				klog.V(1).Infof("FLAG: --%s=%q", flag.Name, flag.Value)
			})
		},
	}
	opts.AddFlags(cmd.PersistentFlags())
	cmd.PersistentFlags().AddGoFlagSet(goflag.CommandLine)

	cmd.AddCommand(
		newRestoreCmd(opts),
		newListCmd(opts),
		newTestCmd(opts),
		newStressCmd(ctx, opts),
	)
	return cmd
}

func (opts *options) load() (*ipset.Executor, error) {
	if opts.restoreFile == "" {
		return nil, errors.New("--file is required")
	}
	cfg, err := config.Load(opts.restoreFile)
	if err != nil {
		return nil, err
	}
	exec := ipset.NewExecutor()
	if err := cfg.Apply(exec); err != nil {
		return nil, err
	}
	return exec, nil
}

func newRestoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Load the restore file and print a summary of every set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := opts.load()
			if err != nil {
				return err
			}
			names, _ := exec.ListIPSets()
			for _, name := range names {
				s, err := exec.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", s.Header())
			}
			return nil
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [NAME...]",
		Short: "Print set headers and members",
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := opts.load()
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names, _ = exec.ListIPSets()
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				s, err := exec.Get(name)
				if err != nil {
					return err
				}
				entries, err := exec.ListEntries(name, opts.comments)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\nMembers:\n", s.Header())
				for _, entry := range entries {
					fmt.Fprintln(out, entry)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	opts.AddListFlags(cmd.Flags())
	return cmd
}

func newTestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "test NAME ENTRY",
		Short: "Check whether an entry is in a set; exits non-zero when it is not",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := opts.load()
			if err != nil {
				return err
			}
			ok, err := exec.Test(args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return errors.Wrapf(errNotInSet, "%s is NOT in set %s", args[1], args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is in set %s.\n", args[1], args[0])
			return nil
		},
	}
}

func newStressCmd(ctx context.Context, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress NAME ENTRY",
		Short: "Churn a set with one writer while readers keep testing ENTRY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := opts.load()
			if err != nil {
				return err
			}
			s, err := exec.Get(args[0])
			if err != nil {
				return err
			}
			probe, err := ipset.ParseEntry(s.HashType, args[1])
			if err != nil {
				return err
			}

			res, err := runStress(ctx, s, probe, opts.readers, opts.window, opts.duration)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expected %t: %d lookups, %d wrong, %d writes, %d buckets\n",
				res.want, res.lookups, res.wrong, res.writes, s.Buckets())
			if res.wrong > 0 {
				return errors.Errorf("%d lookups returned the wrong answer", res.wrong)
			}
			return nil
		},
	}
	opts.AddStressFlags(cmd.Flags())
	return cmd
}
