package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskpool/taskpool/workerruntime"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy-methods",
	Short: "List the methods a freshly built worker runtime exposes via Pool.Proxy",
	RunE:  runProxyMethods,
}

func runProxyMethods(cmd *cobra.Command, args []string) error {
	rt := workerruntime.New()
	_ = rt.Register("add", func(_ context.Context, _ workerruntime.EventSink, params any) (any, error) {
		return nil, nil
	})
	_ = rt.Register("echo", func(_ context.Context, _ workerruntime.EventSink, params any) (any, error) {
		return params, nil
	})

	p, err := buildPool(rt)
	if err != nil {
		return err
	}
	defer p.Terminate(true, 0).Wait(context.Background())

	proxy, err := p.Proxy(cmd.Context())
	if err != nil {
		return err
	}
	for _, m := range proxy.Methods() {
		fmt.Println(m)
	}
	return nil
}
