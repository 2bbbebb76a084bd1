package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/proctor/internal/app"
	"github.com/ent0n29/proctor/internal/capture"
	"github.com/ent0n29/proctor/internal/config"
	"github.com/ent0n29/proctor/internal/identity"
	"github.com/ent0n29/proctor/internal/logging"
	"github.com/ent0n29/proctor/internal/risk"
	"github.com/ent0n29/proctor/internal/session"
	"github.com/ent0n29/proctor/internal/store"
)

type simulateOptions struct {
	name     string
	duration time.Duration
	interval time.Duration
	headProb float64
	devProb  float64
	seed     uint64
	denyCam  bool
}

func newSimulateCmd() *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one monitored session locally against the simulated detector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return simulate(ctx, cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.name, "name", "Demo Student", "student name")
	f.DurationVar(&opts.duration, "duration", 20*time.Second, "how long to monitor")
	f.DurationVar(&opts.interval, "interval", 2*time.Second, "detection sampling interval")
	f.Float64Var(&opts.headProb, "head-prob", 0.3, "head movement probability per tick")
	f.Float64Var(&opts.devProb, "device-prob", 0.1, "device detection probability per tick")
	f.Uint64Var(&opts.seed, "seed", 0, "detector seed (0 seeds from the clock)")
	f.BoolVar(&opts.denyCam, "deny-camera", false, "simulate a denied camera permission")
	return cmd
}

func simulate(ctx context.Context, out io.Writer, opts simulateOptions) error {
	logger := logging.Discard()
	st := store.NewInMemoryStore()
	defer st.Close()

	student, err := st.CreateStudent(ctx, store.NewStudent{Name: opts.name, Email: "simulated@localhost"})
	if err != nil {
		return err
	}
	ident := identity.New()
	ident.Bind(student)

	cfg := config.Config{
		DetectionInterval:       opts.interval,
		HeadMovementProbability: opts.headProb,
		DeviceProbability:       opts.devProb,
		DetectionSeed:           opts.seed,
	}
	lcCfg := session.DefaultConfig()
	lcCfg.DetectionInterval = opts.interval

	device := capture.NewMockDevice()
	device.SetDenied(opts.denyCam)
	lc := session.NewLifecycle(lcCfg, session.Deps{
		Store:  st,
		Source: app.DetectionSource(cfg),
		Device: device,
		Logger: logger,
	})

	updates, unsubscribe := lc.Subscribe()
	defer unsubscribe()

	sess, err := lc.Start(ctx, ident)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s started for %s\n", sess.ID, student.Name)

	timer := time.NewTimer(opts.duration)
	defer timer.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-timer.C:
			break loop
		case u := <-updates:
			switch u.Type {
			case session.UpdateAdvisory:
				fmt.Fprintf(out, "[%3ds] ADVISORY %s\n", u.Snapshot.ElapsedSeconds, u.Advisory.Message)
			case session.UpdateSnapshot:
				s := u.Snapshot
				if s.Session.HeadMovementCount+s.Session.DeviceDetectionCount == 0 {
					continue
				}
				fmt.Fprintf(out, "[%3ds] trust=%d head=%d devices=%d tier=%s\n",
					s.ElapsedSeconds, s.Session.TrustScore, s.Session.HeadMovementCount,
					s.Session.DeviceDetectionCount, s.Tier)
			}
		}
	}

	final, _, err := lc.Stop(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	summary := struct {
		store.Session
		Tier risk.Tier `json:"tier"`
	}{Session: final, Tier: risk.TierFor(final.TrustScore)}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
