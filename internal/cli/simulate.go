package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/logging"
	"github.com/taoyao-code/relayctl/internal/protocol/relay"
	"github.com/taoyao-code/relayctl/internal/simulator"
)

func newSimulateCommand(opts *globalOptions) *cobra.Command {
	var (
		listen  string
		relays  int
		initial string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-memory relay board speaking the 0xA5 protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cfgpkg.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			sc := cfg.Simulator
			if cmd.Flags().Changed("listen") {
				sc.Addr = listen
			}
			if cmd.Flags().Changed("relays") {
				sc.RelayCount = relays
			}
			if cmd.Flags().Changed("initial") {
				mask, err := relay.ParseMask(initial)
				if err != nil {
					return err
				}
				sc.InitialMask = int(mask)
			}
			if sc.RelayCount < 1 || sc.RelayCount > relay.MaxRelays {
				return fmt.Errorf("relays must be within 1..%d, got %d", relay.MaxRelays, sc.RelayCount)
			}

			logger, err := logging.InitCLILogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			srv, board := simulator.NewServer(sc, logger, nil)
			if err := srv.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "relay simulator listening on %s (%d relays)\n", srv.Addr(), board.RelayCount())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("simulator shutdown", zap.Error(err))
			}
			logger.Info("simulator stopped", zap.String("final_mask", fmt.Sprintf("0x%02X", board.Mask())))
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":3736", "listen address (default simulator.addr)")
	cmd.Flags().IntVar(&relays, "relays", 4, "number of simulated relays, 1..8 (default simulator.relayCount)")
	cmd.Flags().StringVar(&initial, "initial", "00", "initial relay bitmask in hex")
	return cmd
}
