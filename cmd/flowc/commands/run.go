package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xzero/flowd/internal/bytecode"
	"github.com/xzero/flowd/internal/host"
	"github.com/xzero/flowd/internal/native"
	"github.com/xzero/flowd/internal/vm"
)

// RunCommand loads a compiled Program and serves it over HTTP until
// interrupted (spec.md section 2's expansion: "an HTTP connection
// driving the VM once per request").
//
// Usage: flowc run <program.flowbc> -config <flowd.toml>
func RunCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: flowc run <program.flowbc> -config <flowd.toml>")
	}
	progPath := args[0]
	configPath := ""
	for i := 1; i < len(args); i++ {
		if args[i] == "-config" && i+1 < len(args) {
			configPath = args[i+1]
			i++
		}
	}

	f, err := os.Open(progPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", progPath, err)
	}
	prog, err := bytecode.Read(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("reading %s: %w", progPath, err)
	}

	if configPath == "" {
		return fmt.Errorf("flowc run requires -config (no default listen address without one)")
	}
	cfg, err := host.LoadConfig(configPath)
	if err != nil {
		return err
	}

	reg, err := runtimeRegistry(cfg)
	if err != nil {
		return err
	}

	if err := prog.Validate(); err != nil {
		return fmt.Errorf("refusing to run malformed bytecode: %w", err)
	}
	if err := vm.LinkNatives(prog, reg); err != nil {
		return fmt.Errorf("program's native table disagrees with the runtime registry: %w", err)
	}

	logger := host.NewStdLogger()
	srv := host.NewServer(cfg, prog, reg, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("listening on %s", cfg.Listen.Address)
	return srv.Serve(ctx)
}

func runtimeRegistry(cfg host.Config) (*native.Registry, error) {
	reg := native.NewRegistry()
	if err := native.RegisterStdlib(reg); err != nil {
		return nil, err
	}
	if err := host.RegisterCallbacks(reg); err != nil {
		return nil, err
	}
	if cfg.Rules.SQLitePath != "" {
		rdb, err := host.OpenRulesDB(cfg.Rules.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := rdb.RegisterDB(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
