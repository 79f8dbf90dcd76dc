package reloader

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// OnSIGHUP runs fn for every SIGHUP until ctx is done.
func OnSIGHUP(ctx context.Context, fn func()) {
	Watch(ctx, fn, syscall.SIGHUP)
}

// Watch runs fn, one call at a time, whenever one of sigs arrives.
func Watch(ctx context.Context, fn func(), sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				fn()
			}
		}
	}()
}
