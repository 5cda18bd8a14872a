package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/telnet2/hako-kernel"
	"go.uber.org/zap"
)

// hako-kerneld boots a guest-process kernel, starts PID 1, and then runs
// until SIGINT or SIGTERM, attaching the host terminal when stdin is a tty.
// PID 1 exiting does not stop the daemon.
// Unlike hakod's interactive admin Shell, every command a guest program
// runs goes through the kernel's permissioned binding surface.
func main() {
	root := &cobra.Command{
		Use:   "hako-kerneld",
		Short: "boot a hako-kernel instance and run its init process",
		RunE:  run,
	}
	root.Flags().SortFlags = false
	kernel.BindFlags(root.Flags())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := kernel.LoadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	log, err := kernel.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	backend, err := cfg.BuildBackend(log)
	if err != nil {
		return fmt.Errorf("build storage backend: %w", err)
	}

	term, err := kernel.NewTerminal(os.Stdin, os.Stdout, log)
	if err != nil {
		log.Warn("terminal attach failed, continuing headless", zap.Error(err))
		term = nil
	}

	k, err := kernel.NewKernel(kernel.KernelConfig{
		Backend:  backend,
		Root:     cfg.Root,
		Terminal: term,
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("boot kernel: %w", err)
	}

	if err := k.Boot(cfg.InitPath); err != nil {
		return fmt.Errorf("start init: %w", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc

	log.Info("shutting down")
	if err := k.Shutdown(); err != nil {
		log.Error("shutdown flush failed", zap.Error(err))
	}
	return nil
}
