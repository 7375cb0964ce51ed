// Package main implements afuse-go's entry point: parse the mountpoint and
// `-o` options, materialize a synthetic scratch root, wire up the
// automount.System and fskit.Server, and serve until a termination signal
// arrives. Grounded on cmd/sysbox-fs/main.go's urfave/cli application
// structure (flags, app.Before log setup, app.Action service wiring,
// signal-driven exit handler, systemd readiness notification, optional
// cpu/memory profiling).
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	systemd "github.com/coreos/go-systemd/daemon"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/afuse-go/afuse/automount"
	"github.com/afuse-go/afuse/config"
	"github.com/afuse-go/afuse/fskit"
)

const usage = `afuse-go file-system

afuse-go is an on-demand automounter: it exposes a synthetic directory
whose subdirectories trigger a configurable mount command the first time
they are accessed, and unmount themselves after a configurable idle
timeout.
`

var (
	version  string
	commitId string
	builtAt  string
	builtBy  string
)

// exitHandler waits for a termination signal, then unmounts the filesystem,
// stops any running profiler, and removes the synthetic scratch root.
// Grounded on cmd/sysbox-fs/main.go's exitHandler.
func exitHandler(
	signalChan chan os.Signal,
	cancel context.CancelFunc,
	server *fskit.Server,
	syntheticRoot string,
	prof interface{ Stop() },
) {
	s := <-signalChan
	logrus.Warnf("afuse-go caught signal: %s", s)
	logrus.Info("Stopping (gracefully) ...")

	systemd.SdNotify(false, systemd.SdNotifyStopping)

	if s == syscall.SIGSEGV || s == syscall.SIGQUIT {
		stacktrace := make([]byte, 32768)
		length := runtime.Stack(stacktrace, true)
		logrus.Warnf("\n\n%s\n", string(stacktrace[:length]))
	}

	cancel()
	if err := server.Unmount(); err != nil {
		logrus.Warnf("failed to unmount cleanly: %v", err)
	}

	if prof != nil {
		prof.Stop()
	}

	if err := os.RemoveAll(syntheticRoot); err != nil {
		logrus.Warnf("failed to remove synthetic root %q: %v", syntheticRoot, err)
	}

	logrus.Info("Exiting ...")
	os.Exit(0)
}

// runProfiler starts cpu or memory profiling if requested. NoShutdownHook is
// passed so the profiler doesn't install its own sigterm handler -- this
// program's own exitHandler is the one responsible for stopping it.
func runProfiler(ctx *cli.Context) (interface{ Stop() }, error) {
	cpuProfOn := ctx.Bool("cpu-profiling")
	memProfOn := ctx.Bool("memory-profiling")

	if cpuProfOn && memProfOn {
		return nil, fmt.Errorf("unsupported parameter combination: cpu and memory profiling")
	}
	if !(cpuProfOn || memProfOn) {
		return nil, nil
	}

	if cpuProfOn {
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook), nil
	}
	return profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook), nil
}

func setupLogging(ctx *cli.Context) error {
	if path := ctx.GlobalString("log"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0666)
		if err != nil {
			return fmt.Errorf("error opening log file %v: %w", path, err)
		}
		logrus.SetOutput(f)
		log.SetOutput(f)
	} else {
		logrus.SetOutput(os.Stderr)
		log.SetOutput(os.Stderr)
	}

	if ctx.GlobalString("log-format") == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
	}

	switch logLevel := ctx.GlobalString("log-level"); logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info", "":
		logrus.SetLevel(logrus.InfoLevel)
	case "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	default:
		return fmt.Errorf("log-level option %q not recognized", logLevel)
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "afuse-go"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "mountpoint",
			Usage: "path at which to expose the automounted filesystem",
		},
		cli.StringFlag{
			Name:  "o",
			Usage: "comma-separated mount options (mount_template, unmount_template, populate_root_command, filter_file, timeout, flushwrites, exact_getattr)",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "log file path or empty string for stderr output",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log categories to include (debug, info, warning, error, fatal)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format; must be json or text",
		},
		cli.BoolFlag{
			Name:   "cpu-profiling",
			Usage:  "enable cpu-profiling data collection",
			Hidden: true,
		},
		cli.BoolFlag{
			Name:   "memory-profiling",
			Usage:  "enable memory-profiling data collection",
			Hidden: true,
		},
	}

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("afuse-go\n\tversion: \t%s\n\tcommit: \t%s\n\tbuilt at: \t%s\n\tbuilt by: \t%s\n",
			c.App.Version, commitId, builtAt, builtBy)
	}

	// afuse's KEY_HELP handler prints usage and always exits 1, even though
	// -h is a normal option from fuse_opt's point of view. urfave/cli's
	// default HelpPrinter leaves the exit code at 0, so wrap it.
	defaultHelpPrinter := cli.HelpPrinter
	cli.HelpPrinter = func(w io.Writer, templ string, data interface{}) {
		defaultHelpPrinter(w, templ, data)
		os.Exit(1)
	}

	app.Before = setupLogging

	app.Action = func(ctx *cli.Context) error {
		mountpoint := ctx.GlobalString("mountpoint")
		if mountpoint == "" && ctx.NArg() > 0 {
			mountpoint = ctx.Args().First()
		}
		if mountpoint == "" {
			return fmt.Errorf("mountpoint is required")
		}

		opts, err := config.ParseOptions(ctx.GlobalString("o"))
		if err != nil {
			return err
		}

		syntheticRoot, err := os.MkdirTemp("", "afuse-go-")
		if err != nil {
			return fmt.Errorf("failed to create synthetic root: %w", err)
		}

		sys, err := automount.NewSystem(syntheticRoot, opts)
		if err != nil {
			os.RemoveAll(syntheticRoot)
			return fmt.Errorf("failed to initialize automount system: %w", err)
		}

		server := fskit.New(mountpoint, sys)

		prof, err := runProfiler(ctx)
		if err != nil {
			os.RemoveAll(syntheticRoot)
			return err
		}

		runCtx, cancel := context.WithCancel(context.Background())

		exitChan := make(chan os.Signal, 1)
		signal.Notify(exitChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGSEGV, syscall.SIGQUIT)
		go exitHandler(exitChan, cancel, server, syntheticRoot, prof)

		systemd.SdNotify(false, systemd.SdNotifyReady)
		logrus.Infof("serving %s (scratch root %s)", mountpoint, syntheticRoot)

		if err := server.Run(runCtx); err != nil && runCtx.Err() == nil {
			os.RemoveAll(syntheticRoot)
			return fmt.Errorf("fuse server exited: %w", err)
		}

		// Run returned because the signal handler cancelled runCtx; give it
		// a moment to finish its own cleanup before the process exits via
		// os.Exit in exitHandler.
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
