// Package cli 实现 relayctl 命令行
package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/logging"
	"github.com/taoyao-code/relayctl/internal/output"
	"github.com/taoyao-code/relayctl/internal/protocol/relay"
	"github.com/taoyao-code/relayctl/internal/relayclient"
	"github.com/taoyao-code/relayctl/internal/service"
)

// globalOptions 全局参数
type globalOptions struct {
	cfgFile string
	output  string
	timeout time.Duration
	relays  int
	verbose bool
}

// operation 一个设备子命令
type operation struct {
	usage string
	nargs int
	run   func(ctx context.Context, svc *service.RelayService, f output.Formatter, args []string) (string, error)
}

var operations = map[string]operation{
	"ping": {
		usage: "ping",
		run: func(ctx context.Context, svc *service.RelayService, f output.Formatter, _ []string) (string, error) {
			id, err := svc.Ping(ctx)
			if err != nil {
				return "", err
			}
			return f.Ack(ack(svc, relay.CmdPing, "pong", id)), nil
		},
	},
	"status": {
		usage: "status",
		run: func(ctx context.Context, svc *service.RelayService, f output.Formatter, _ []string) (string, error) {
			st, err := svc.Status(ctx)
			if err != nil {
				return "", err
			}
			return f.Status(st), nil
		},
	},
	"set": {
		usage: "set <relay_id> <0|1>",
		nargs: 2,
		run: func(ctx context.Context, svc *service.RelayService, f output.Formatter, args []string) (string, error) {
			id, err := parseRelayID(args[0])
			if err != nil {
				return "", err
			}
			state, err := strconv.ParseUint(args[1], 10, 8)
			if err != nil {
				return "", fmt.Errorf("invalid state %q: want 0 or 1", args[1])
			}
			cmdID, err := svc.SetRelay(ctx, id, state != 0)
			if err != nil {
				return "", err
			}
			return f.Ack(ack(svc, relay.CmdSetRelay, "ok", cmdID)), nil
		},
	},
	"toggle": {
		usage: "toggle <relay_id>",
		nargs: 1,
		run: func(ctx context.Context, svc *service.RelayService, f output.Formatter, args []string) (string, error) {
			id, err := parseRelayID(args[0])
			if err != nil {
				return "", err
			}
			cmdID, err := svc.ToggleRelay(ctx, id)
			if err != nil {
				return "", err
			}
			return f.Ack(ack(svc, relay.CmdToggleRelay, "ok", cmdID)), nil
		},
	},
	"all": {
		usage: "all <hex-bitmask>",
		nargs: 1,
		run: func(ctx context.Context, svc *service.RelayService, f output.Formatter, args []string) (string, error) {
			mask, err := relay.ParseMask(args[0])
			if err != nil {
				return "", err
			}
			cmdID, err := svc.SetAll(ctx, mask)
			if err != nil {
				return "", err
			}
			return f.Ack(ack(svc, relay.CmdSetAll, "ok", cmdID)), nil
		},
	},
}

// 帮助信息中的顺序
var operationOrder = []string{"ping", "status", "set", "toggle", "all"}

// NewRootCommand 构建 relayctl 根命令
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "relayctl [host:port] <command> [args...]",
		Short: "Control a 0xA5 relay board over TCP",
		Long: `relayctl talks to a relay board using the 0xA5 binary protocol.
Each command opens a fresh TCP connection, sends one request and reads one response.

Commands:
` + commandList() + `
If host:port is omitted, relay.addr from the config file is used.`,
		Example: `  relayctl 192.168.1.40:3736 ping
  relayctl 192.168.1.40:3736 set 2 1
  relayctl 192.168.1.40:3736 all 0F -o json
  relayctl simulate --listen :3736`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, opts, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "config file (default $RELAY_CONFIG or ./configs/relayctl.yaml)")
	pf.StringVarP(&opts.output, "output", "o", "table", "output format: table, json, yaml")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log protocol exchanges to stderr")

	root.Flags().DurationVar(&opts.timeout, "timeout", 0, "connect/read/write timeout (default relay.timeout, 2s)")
	root.Flags().IntVar(&opts.relays, "relays", 0, "number of relays to show in status (default relay.relayCount)")

	root.AddCommand(newSimulateCommand(opts))
	return root
}

func commandList() string {
	s := ""
	for _, name := range operationOrder {
		s += "  " + operations[name].usage + "\n"
	}
	return s
}

func runOperation(cmd *cobra.Command, opts *globalOptions, args []string) error {
	cfg, err := cfgpkg.Load(opts.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	addr := cfg.Relay.Addr
	if _, isOp := operations[args[0]]; !isOp {
		addr, args = args[0], args[1:]
	}
	if len(args) == 0 {
		return fmt.Errorf("missing command for %s; want one of: ping, status, set, toggle, all", addr)
	}
	name, rest := args[0], args[1:]
	op, ok := operations[name]
	if !ok {
		return fmt.Errorf("invalid command %q", name)
	}
	if len(rest) != op.nargs {
		return fmt.Errorf("usage: relayctl <host:port> %s", op.usage)
	}

	logger, err := newLogger(cfg, opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	timeout := cfg.Relay.Timeout
	if opts.timeout > 0 {
		timeout = opts.timeout
	}
	relays := cfg.Relay.RelayCount
	if opts.relays > 0 {
		relays = opts.relays
	}

	client := relayclient.New(addr, relayclient.WithTimeout(timeout))
	svc := service.NewRelayService(client, relays, service.WithLogger(logger))

	out, err := op.run(cmd.Context(), svc, output.NewFormatter(opts.output), rest)
	if err != nil {
		return fmt.Errorf("%s %s: %w", name, addr, err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// newLogger 默认静默，-v 时按配置输出到 stderr 并至少为 debug
func newLogger(cfg *cfgpkg.Config, verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	lc := cfg.Logging
	lc.Level = "debug"
	return logging.InitCLILogger(lc)
}

func parseRelayID(s string) (byte, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid relay id %q: want 0..255", s)
	}
	return byte(n), nil
}

func ack(svc *service.RelayService, cmd relay.Command, result, id string) output.Ack {
	return output.Ack{Command: cmd.String(), DeviceAddr: svc.DeviceAddr(), Result: result, CommandID: id}
}
