package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Bibi40k/podnet-primitives/internal/config"
	"github.com/Bibi40k/podnet-primitives/internal/metrics"
	"github.com/Bibi40k/podnet-primitives/internal/orchestrator"
	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/primitive"
	"github.com/Bibi40k/podnet-primitives/internal/ssh"
	"github.com/Bibi40k/podnet-primitives/pkg/model"
)

// app is everything a primitive command needs, built once per invocation.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	runner   *primitive.Runner
	recorder *metrics.Recorder
	human    bool
}

// newClient is replaced in tests.
var newClient = func(cfg ssh.Config) (orchestrator.Executor, error) {
	return ssh.NewClient(cfg)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, &userError{msg: err.Error(), hint: "Check --config and the PODNET_* environment variables"}
	}
	if flags.podnetConfig != "" {
		cfg.PodNetConfig = flags.podnetConfig
	}
	if flags.metricsTextfile != "" {
		cfg.Metrics.Textfile = flags.metricsTextfile
	}
	return cfg, nil
}

func newApp(progress io.Writer) (*app, error) {
	logger, err := newLogger(flags.logFormat, flags.logLevel)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	human := !flags.jsonOut && strings.EqualFold(flags.logFormat, "text")
	client, err := newClient(ssh.Config{
		Port:           cfg.SSH.Port,
		User:           cfg.SSH.User,
		PrivateKeyPath: cfg.SSH.PrivateKey,
		KnownHostsFile: cfg.SSH.KnownHostsFile,
		KnownHostsMode: config.NormalizeKnownHostsMode(cfg.SSH.KnownHostsMode),
		Prompt:         knownHostsPrompt(cfg, human),
		ConnectTimeout: cfg.Timeouts.ConnectDuration(),
		CommandTimeout: cfg.Timeouts.CommandDuration(),
	})
	if err != nil {
		return nil, &userError{msg: err.Error(), hint: "Set ssh.private_key in the robot config or PODNET_SSH_PRIVATE_KEY"}
	}

	recorder := metrics.NewRecorder()
	orch := orchestrator.New(client, logger, orchestrator.Options{
		ConfigFile:    cfg.PodNetConfig,
		HumanProgress: human,
		Progress:      progress,
		Observer:      recorder,
	})
	return &app{
		cfg:      cfg,
		logger:   logger,
		runner:   primitive.NewRunner(orch, cfg.PodNetConfig, logger),
		recorder: recorder,
		human:    human,
	}, nil
}

// run executes op and prints the report. A failed report yields
// errReportFailed so the process exits non-zero.
func (a *app) run(ctx context.Context, w io.Writer, p primitive.Primitive, op plan.Operation) error {
	var rep model.Report
	if hp, ok := p.(primitive.HostPrimitive); ok {
		rep = a.runner.RunHost(ctx, hp, op)
	} else {
		rep = a.runner.Run(ctx, p, op)
	}

	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.recorder.WriteTextfile(path); err != nil {
			a.logger.Warn("write metrics textfile", "path", path, "error", err)
		}
	}

	if err := printReport(w, rep, flags.jsonOut); err != nil {
		return err
	}
	if !rep.Success {
		return fmt.Errorf("%w: %s %s", errReportFailed, rep.Primitive, rep.Operation)
	}
	return nil
}
