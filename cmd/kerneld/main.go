//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/nestybox/kerneld/clipboard"
	"github.com/nestybox/kerneld/config"
	"github.com/nestybox/kerneld/executor"
	"github.com/nestybox/kerneld/ipc"
	"github.com/nestybox/kerneld/memory"
	"github.com/nestybox/kerneld/observability"
	"github.com/nestybox/kerneld/process"
	"github.com/nestybox/kerneld/rpcsurface"
	"github.com/nestybox/kerneld/sandbox"
	"github.com/nestybox/kerneld/scheduler"
	"github.com/nestybox/kerneld/search"
	"github.com/nestybox/kerneld/syscall"
	"github.com/nestybox/kerneld/vfs"

	systemd "github.com/coreos/go-systemd/v22/daemon"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"gopkg.in/hlandau/service.v1"
)

const usage string = `kerneld

kerneld is a userspace supervision kernel: it mediates syscall-shaped
requests against a sandboxed virtual filesystem, process table, IPC
primitives and scheduler, the way a real kernel mediates syscalls for
the processes it runs.
`

// Globals populated at build time during Makefile processing.
var (
	edition  string
	version  string
	commitId string
	builtAt  string
	builtBy  string
)

const (
	defaultMemoryBytes = 1 << 30
	defaultMaxAsync    = 64
	defaultRatePerPid  = 0 // 0 disables per-pid rate limiting
	defaultRateBurst   = 0
	defaultFdLimit     = 1024
	defaultQuantum     = 10 * time.Millisecond
)

// kernelService adapts the rpcsurface.Server to the Runnable interface
// gopkg.in/hlandau/service.v1 expects, so the daemon harness owns
// start/stop instead of a hand-rolled signal goroutine.
type kernelService struct {
	http    *http.Server
	profile interface{ Stop() }
}

func (s *kernelService) Start() error {
	logrus.Infof("kerneld listening on %s", s.http.Addr)
	systemd.SdNotify(false, systemd.SdNotifyReady)

	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("rpc surface exited: %v", err)
		}
	}()
	return nil
}

func (s *kernelService) Stop() error {
	logrus.Info("Stopping (gracefully) ...")
	systemd.SdNotify(false, systemd.SdNotifyStopping)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		logrus.Warnf("error shutting down rpc surface: %v", err)
	}

	if s.profile != nil {
		s.profile.Stop()
	}
	logrus.Info("Exiting ...")
	return nil
}

// runProfiler starts cpu or memory profiling collection, mirroring
// the mutual-exclusion the underlying pprof profiler enforces.
func runProfiler(ctx *cli.Context) (interface{ Stop() }, error) {
	cpuProfOn := ctx.Bool("cpu-profiling")
	memProfOn := ctx.Bool("memory-profiling")

	if cpuProfOn && memProfOn {
		return nil, fmt.Errorf("unsupported parameter combination: cpu and memory profiling")
	}
	if !(cpuProfOn || memProfOn) {
		return nil, nil
	}

	var prof interface{ Stop() }
	if cpuProfOn {
		prof = profile.Start(
			profile.CPUProfile,
			profile.ProfilePath("."),
			profile.NoShutdownHook,
		)
	}
	if memProfOn {
		prof = profile.Start(
			profile.MemProfile,
			profile.ProfilePath("."),
			profile.NoShutdownHook,
		)
	}
	return prof, nil
}

func buildServer(ctx *cli.Context) (*kernelService, error) {
	cfg, err := config.Load(ctx.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if addr := ctx.GlobalString("listen"); addr != "" {
		cfg.Server.Address = addr
	}

	mounts := vfs.NewMountTable()
	mounts.Mount("/", vfs.OsBackend("root", ctx.GlobalString("root")))
	fs := vfs.NewFacade(mounts)

	mem := memory.NewManager(defaultMemoryBytes)
	pipes := ipc.NewPipeTable(mem)
	queues := ipc.NewQueueTable(mem)
	shm := ipc.NewShmTable(mem)
	mmaps := ipc.NewMmapTable(fs)
	sched := scheduler.NewScheduler(scheduler.PolicyFair, defaultQuantum)

	sandboxes := sandbox.NewRegistry()
	perms := sandbox.NewPermissionManager(sandboxes).WithRoot(ctx.GlobalString("root"))

	logCollector := observability.NewLogCollector(logrus.StandardLogger())
	broadcast := observability.NewBroadcastCollector()
	collector := observability.NewMultiCollector(logCollector, broadcast)

	procs := process.NewManager(process.Config{
		Memory:    mem,
		Pipes:     pipes,
		Queues:    queues,
		Shm:       shm,
		Mmaps:     mmaps,
		Scheduler: sched,
		Sandboxes: sandboxes,
		Collector: collector,
		FdLimit:   defaultFdLimit,
	})

	clip := clipboard.NewManager(cfg.ClipboardHistory)
	searcher := search.NewSearcher(fs, cfg.SearchMaxScanBytes)

	dispatcher := syscall.NewDispatcher(perms, collector, defaultRatePerPid, defaultRateBurst)
	syscall.RegisterHandlers(dispatcher, &syscall.Services{
		Vfs:       fs,
		Pipes:     pipes,
		Queues:    queues,
		Shm:       shm,
		Mmaps:     mmaps,
		Processes: procs,
		Scheduler: sched,
		Clipboard: clip,
		Searcher:  searcher,
	})

	exec := executor.NewAsyncExecutor(dispatcher, defaultMaxAsync)
	rpc := rpcsurface.NewServer(cfg.Server, exec, broadcast, logrus.StandardLogger())

	prof, err := runProfiler(ctx)
	if err != nil {
		return nil, err
	}

	return &kernelService{
		http: &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      rpc.Handler(),
			ReadTimeout:  cfg.Server.Timeout(),
			WriteTimeout: cfg.Server.Timeout(),
		},
		profile: prof,
	}, nil
}

func main() {
	app := cli.NewApp()
	app.Name = "kerneld"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Value: "",
			Usage: "path to a YAML config file (default: built-in defaults)",
		},
		cli.StringFlag{
			Name:  "listen",
			Value: "",
			Usage: "override the configured RPC listen address (host:port)",
		},
		cli.StringFlag{
			Name:  "root",
			Value: "/var/lib/kerneld",
			Usage: "directory the root VFS mount is backed by",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "log file path or empty string for stderr output (default: \"\")",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "info",
			Usage:  "log categories to include (debug, info, warning, error, fatal)",
			EnvVar: "KERNELD_LOG_LEVEL",
		},
		cli.StringFlag{
			Name:   "log-format",
			Value:  "text",
			Usage:  "log format; must be json or text",
			EnvVar: "KERNELD_LOG_FORMAT",
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
		fmt.Printf("kerneld\n"+
			"\tedition: \t%s\n"+
			"\tversion: \t%s\n"+
			"\tcommit: \t%s\n"+
			"\tbuilt at: \t%s\n"+
			"\tbuilt by: \t%s\n",
			edition, c.App.Version, commitId, builtAt, builtBy)
	}

	app.Before = func(ctx *cli.Context) error {
		rand.Seed(time.Now().UnixNano())

		if path := ctx.GlobalString("log"); path != "" {
			f, err := os.OpenFile(
				path,
				os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC,
				0666,
			)
			if err != nil {
				logrus.Fatalf("error opening log file %v: %v. Exiting ...", path, err)
				return err
			}
			logrus.SetOutput(f)
			log.SetOutput(f)
		} else {
			logrus.SetOutput(os.Stderr)
			log.SetOutput(os.Stderr)
		}

		if logFormat := ctx.GlobalString("log-format"); logFormat == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{
				TimestampFormat: "2006-01-02 15:04:05",
			})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{
				TimestampFormat: "2006-01-02 15:04:05",
				FullTimestamp:   true,
			})
		}

		if logLevel := ctx.GlobalString("log-level"); logLevel != "" {
			switch logLevel {
			case "debug":
				logrus.SetLevel(logrus.DebugLevel)
			case "info":
				logrus.SetLevel(logrus.InfoLevel)
			case "warning":
				logrus.SetLevel(logrus.WarnLevel)
			case "error":
				logrus.SetLevel(logrus.ErrorLevel)
			case "fatal":
				logrus.SetLevel(logrus.FatalLevel)
			default:
				logrus.Fatalf("log-level option '%v' not recognized. Exiting ...", logLevel)
			}
		} else {
			logrus.SetLevel(logrus.InfoLevel)
		}

		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		logrus.Info("Initiating kerneld ...")

		if err := os.MkdirAll(ctx.GlobalString("root"), 0700); err != nil {
			return fmt.Errorf("failed to create vfs root %s: %v", ctx.GlobalString("root"), err)
		}

		svc, err := buildServer(ctx)
		if err != nil {
			logrus.Fatal(err)
		}

		logrus.Info("Ready ...")

		service.Main(&service.Info{
			Name:        "kerneld",
			Description: "kerneld userspace supervision kernel",
			NewFunc: func() (service.Runnable, error) {
				return svc, nil
			},
		})

		return nil
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
