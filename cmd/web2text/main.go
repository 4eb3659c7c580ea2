// Package main provides the web2text command.
//
// web2text crawls a website from a seed URL and writes the plain text of
// every in-scope page, either one line per page or one file per page.
//
// Usage:
//
//	web2text [flags] URL
//
// See --help for all available options.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

func main() {
	// Stdout is reserved for line output
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := handleSignals(cancel, log)
	defer stop()

	cmd := NewRootCmd(log, os.Stdout)
	cmd.SetArgs(placeOptionalValues(cmd.Flags(), os.Args[1:]))
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Errorf("web2text: %v", err)
		stop()
		cancel()
		os.Exit(1)
	}
}

// handleSignals cancels the crawl on the first SIGINT/SIGTERM and forces
// an exit on the second one, or when shutdown takes too long
func handleSignals(cancel context.CancelFunc, log *logrus.Logger) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		var sig os.Signal
		select {
		case sig = <-sigChan:
		case <-done:
			return
		}
		log.Warnf("Received signal: %v. Stopping crawl...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
		})
	}
}
