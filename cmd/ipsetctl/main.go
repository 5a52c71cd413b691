package main

import (
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/pmlproject9/lbset/cmd/ipsetctl/app"
	"github.com/pmlproject9/lbset/pkg/utils"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	ctx := utils.GraceStopWithContext()
	cmd := app.NewIPSetCtl(ctx)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		klog.Flush()
		os.Exit(1)
	}
}
