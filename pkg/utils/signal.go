package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"
)

var stopCh = make(chan os.Signal, 2)

// GraceStopWithContext returns a context cancelled on the first SIGTERM or
// SIGINT, so long-running commands such as a stress run can stop cleanly.
// A second signal exits at once.
func GraceStopWithContext() context.Context {
	signal.Notify(stopCh, syscall.SIGTERM, syscall.SIGINT)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sig := <-stopCh
		klog.Warningf("stopping, caused by %s; send it again to exit now", sig)
		cancel()
		<-stopCh
		klog.Flush()
		os.Exit(1)
	}()
	return ctx
}
