package app

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/pmlproject9/lbset/pkg/utils"
)

const envPrefix = "ipsetctl"

type options struct {
	restoreFile string
	readers     int
	duration    time.Duration
	window      int
	comments    bool
}

func (opts *options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&opts.restoreFile, "file", "f", opts.restoreFile, "Path to a restore file describing the sets and their entries")
}

func (opts *options) AddListFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&opts.comments, "comments", opts.comments, "Print entry comments of sets created with comment support")
}

func (opts *options) AddStressFlags(fs *pflag.FlagSet) {
	fs.IntVar(&opts.readers, "readers", opts.readers, "Number of concurrent lookup goroutines")
	fs.DurationVar(&opts.duration, "duration", opts.duration, "How long to run (e.g. '10s', '1m')")
	fs.IntVar(&opts.window, "window", opts.window, "Number of churn entries kept in the set by the writer")
}

// NewOptions starts from the IPSETCTL_* environment; flags override it.
func NewOptions() *options {
	env := utils.CtlEnvFromEnvironment(envPrefix)
	return &options{
		restoreFile: env.File,
		readers:     env.Readers,
		duration:    env.Duration,
		window:      env.Window,
		comments:    true,
	}
}
