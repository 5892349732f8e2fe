package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ggnet/ggnet-core/api"
	"github.com/ggnet/ggnet-core/bootchain/dhcp"
	"github.com/ggnet/ggnet-core/bootchain/ipxe"
	"github.com/ggnet/ggnet-core/daemonstate"
	"github.com/ggnet/ggnet-core/gc"
	"github.com/ggnet/ggnet-core/images"
	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/internal/obslog"
	"github.com/ggnet/ggnet-core/iscsi"
	"github.com/ggnet/ggnet-core/session"
	"github.com/ggnet/ggnet-core/store"
	"github.com/ggnet/ggnet-core/utils"
)

var serveLogger = obslog.WithFunc("cmd.serve")

const gcInterval = 10 * time.Minute

// serveBinaryName is what VerifyProcess expects /proc/<pid>/exe to resolve
// to when deciding whether a stale PID file's process is really a prior
// ggnet-core serve instance rather than an unrelated process that reused
// the PID.
const serveBinaryName = "ggnet-core"

// claimPIDFile refuses to start a second serve instance against the same
// RunDir: if pidPath names a PID that is alive and looks like ggnet-core,
// that's a running instance and we bail; otherwise the file is stale (a
// prior instance crashed) and is overwritten with our own PID, removed on
// clean shutdown by the returned func.
func claimPIDFile(runDir string) (func(), error) {
	pidPath := filepath.Join(runDir, "ggnet-core.pid")

	if existing, err := utils.ReadPIDFile(pidPath); err == nil {
		if utils.IsProcessAlive(existing) && utils.VerifyProcess(existing, serveBinaryName) {
			return nil, ggerr.Conflict("serve.already_running", "a serve instance is already running")
		}
	} else if !os.IsNotExist(err) {
		return nil, ggerr.Wrap(ggerr.KindFatal, "serve.read_pidfile", err, "read stale pid file")
	}

	if err := utils.WritePIDFile(pidPath, os.Getpid()); err != nil {
		return nil, ggerr.Wrap(ggerr.KindFatal, "serve.write_pidfile", err, "write pid file")
	}
	return func() { _ = os.Remove(pidPath) }, nil
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, conversion workers, and session reconciler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	releasePID, err := claimPIDFile(conf.RunDir)
	if err != nil {
		return err
	}
	defer releasePID()

	st, err := store.Open(conf.DatabaseDSN)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	pipeline := images.New(conf, st)
	workers := images.NewConversionWorkerPool(conf, st)
	targets := iscsi.NewTargetCLI(conf.TargetCLIBinary, conf.TargetCreateTimeout)
	ipxeWriter := ipxe.New(conf.TFTPRoot)
	dhcpMgr := dhcp.New(dhcp.Config{
		ConfigPath:    conf.DHCPConfigPath,
		ReloadCommand: conf.DHCPReloadCommand,
		TFTPHost:      conf.PortalIP,
		ReloadTimeout: conf.DHCPReloadTimeout,
	})
	hub := api.NewSessionHub()
	orch := session.New(st, targets, ipxeWriter, dhcpMgr, session.Config{
		OrgName:    conf.OrgName,
		PortalIP:   conf.PortalIP,
		PortalPort: conf.PortalPort,
	}, hub)
	state := daemonstate.New(conf.RunDir)

	serveLogger.Infof(ctx, "startup reconciliation sweep")
	if err := orch.Reconcile(ctx); err != nil {
		serveLogger.Warnf(ctx, "startup reconciliation: %v", err)
	}
	if err := state.RecordReconcile(ctx, time.Now()); err != nil {
		serveLogger.Warnf(ctx, "record reconcile timestamp: %v", err)
	}

	router := api.NewRouter(api.Deps{
		Store:        st,
		Pipeline:     pipeline,
		Orchestrator: orch,
		IPXE:         ipxeWriter,
		Hub:          hub,
		State:        state,
		ResolveActor: api.HeaderActorResolver("X-Ggnet-User", "X-Ggnet-Role"),
	})

	httpServer := &http.Server{Addr: conf.HTTPAddr, Handler: router}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return workers.Run(gctx)
	})
	group.Go(func() error {
		return runGCLoop(gctx, pipeline, state)
	})
	group.Go(func() error {
		serveLogger.Infof(gctx, "listening on %s", conf.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second) //nolint:mnd
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runGCLoop periodically sweeps orphaned staging files until ctx is
// cancelled, reusing the same generic gc.Orchestrator the one-shot `gc`
// command drives (spec.md §12 "Supplemented Features").
func runGCLoop(ctx context.Context, pipeline *images.Pipeline, state *daemonstate.Recorder) error {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := runGCOnce(ctx, pipeline); err != nil {
				serveLogger.Errorf(ctx, "gc sweep: %v", err)
				continue
			}
			if err := state.RecordGC(ctx, time.Now()); err != nil {
				serveLogger.Warnf(ctx, "record gc timestamp: %v", err)
			}
		}
	}
}

func runGCOnce(ctx context.Context, pipeline *images.Pipeline) error {
	o := gc.New()
	pipeline.RegisterGC(o)
	return o.Run(ctx)
}

func gcCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Run one orphaned-staging-file collection sweep and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(conf.DatabaseDSN)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			pipeline := images.New(conf, st)
			if err := runGCOnce(cmd.Context(), pipeline); err != nil {
				return err
			}
			return daemonstate.New(conf.RunDir).RecordGC(cmd.Context(), time.Now())
		},
	}
}
