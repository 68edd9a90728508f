package main

import (
	"context"
	"os"
	"sync/atomic"

	"filecron/internal/logging"
)

func watchShutdownSignals(logger *logging.Logger, shutdownCancel context.CancelFunc, signalCh <-chan os.Signal) func() {
	if signalCh == nil {
		return func() {}
	}

	done := make(chan struct{})
	var shutdownStarted atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				if shutdownStarted.CompareAndSwap(false, true) {
					if logger != nil {
						fields := map[string]string{}
						if sig != nil {
							fields["signal"] = sig.String()
						}
						logger.Info("shutdown signal received", fields)
					}
					if shutdownCancel != nil {
						shutdownCancel()
					}
					continue
				}
				if logger != nil {
					logger.Info("shutdown already in progress; ignoring signal", nil)
				}
			}
		}
	}()

	return func() {
		close(done)
	}
}

func watchReloadSignals(logger *logging.Logger, signalCh <-chan os.Signal, reload func()) func() {
	if signalCh == nil || reload == nil {
		return func() {}
	}

	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				if logger != nil {
					fields := map[string]string{}
					if sig != nil {
						fields["signal"] = sig.String()
					}
					logger.Info("reload signal received", fields)
				}
				reload()
			}
		}
	}()

	return func() {
		close(done)
	}
}
