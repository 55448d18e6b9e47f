package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danmuck/republish/internal/admin"
	"github.com/danmuck/republish/internal/config"
	"github.com/danmuck/republish/internal/discovery"
	"github.com/danmuck/republish/internal/journal"
	logs "github.com/danmuck/republish/internal/logging"
	"github.com/danmuck/republish/internal/notify"
	"github.com/danmuck/republish/internal/nsupdate"
	"github.com/danmuck/republish/internal/observability"
	"github.com/danmuck/republish/internal/reconcile"
	"github.com/danmuck/republish/internal/zone"
)

const version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "republishd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags flagValues
	root := &cobra.Command{
		Use:           "republishd",
		Short:         "Republish mDNS-discovered hosts into a dynamic DNS zone",
		Version:       version,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := defaultSettings()
			if flags.configPath != "" {
				if err := loadFileSettings(flags.configPath, &s); err != nil {
					return err
				}
			}
			if err := applyFlags(cmd.Flags(), flags, &s); err != nil {
				return err
			}
			if err := s.resolve(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			logs.ConfigureRuntime()
			logs.SetVerbosity(flags.verbose)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, s)
		},
	}
	bindFlags(root.Flags(), &flags)
	root.AddCommand(newConfigCommand())
	return root
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or check a republishd config file",
	}

	var output string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteTemplate(output, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config template to %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "republishd.toml", "output path")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Parse and validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated config at %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

func run(parent context.Context, s settings) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	observability.RegisterMetrics()
	logs.Infof(
		"republishd starting mode=%s domain=%s server=%s ttl=%d service=%s",
		s.Mode, s.Domain, s.Server, s.TTL, s.ServiceType,
	)

	snapshots := zone.NewDNSReader(s.snapshotServer(), zone.FamilyIPv6, s.ResolveTimeout)
	emitter := nsupdate.NewEmitter(s.runner(), nsupdate.EmitterConfig{
		Binary: s.NsupdatePath,
		Settle: s.SettleInterval,
		Budget: s.FailureBudget,
	})

	var resolver discovery.Resolver
	if s.Mode == reconcile.ModeAudited {
		resolver = discovery.NewMulticastResolver(s.ResolveTimeout, s.MDNSInterface)
	}

	var sinks []reconcile.Sink
	var store *journal.Store
	if s.JournalPath != "" {
		var err error
		store, err = journal.Open(s.JournalPath)
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}
	if s.NatsURL != "" {
		publisher, err := notify.Connect(s.NatsURL, s.NatsSubject)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	engine, err := reconcile.New(s.engineConfig(), snapshots, emitter, resolver, sinks...)
	if err != nil {
		return err
	}

	if s.AdminAddr != "" {
		var reader admin.JournalReader
		if store != nil {
			reader = store
		}
		srv := admin.New(admin.Config{Addr: s.AdminAddr, CORSOrigins: s.CORSOrigins, Version: version}, engine, emitter.Tolerance(), reader)
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logs.Errorf("republishd admin server stopped err=%v", err)
			}
		}()
	}

	browseCfg, err := s.browserConfig()
	if err != nil {
		return err
	}
	events := make(chan discovery.Event, 64)
	browser := discovery.NewBrowser(browseCfg)
	browseErr := make(chan error, 1)
	go func() {
		defer close(events)
		browseErr <- browser.Run(ctx, events)
	}()

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(ctx, events)
	}()

	err = <-browseErr
	cancel()
	<-engineDone
	if errors.Is(err, discovery.ErrBrowseFailed) {
		return err
	}
	logs.Infof("republishd stopped")
	return err
}
