package utils

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"k8s.io/klog/v2"
)

// CtlEnv holds command defaults that may be set from the environment, e.g.
// IPSETCTL_FILE or IPSETCTL_READERS.  Flags still override them.
type CtlEnv struct {
	File     string
	Readers  int           `default:"4"`
	Duration time.Duration `default:"10s"`
	Window   int           `default:"256"`
}

var defaultCtlEnv = CtlEnv{
	Readers:  4,
	Duration: 10 * time.Second,
	Window:   256,
}

// CtlEnvFromEnvironment reads CtlEnv with the given prefix.  A malformed
// variable is logged and the built-in defaults are used instead.
func CtlEnvFromEnvironment(prefix string) CtlEnv {
	env := CtlEnv{}
	if err := envconfig.Process(prefix, &env); err != nil {
		klog.Warningf("ignoring %s environment: %v", prefix, err)
		return defaultCtlEnv
	}
	return env
}
