// MODUL: cmd_bench
// ZWECK: Durchsatz-Messung eines Backends, lokal oder ueber einen laufenden Server
// INPUT: Flags --backend, --backend-opts, --batch-size, --iterations, --remote
// OUTPUT: Positionen pro Sekunde auf stdout
// NEBENEFFEKTE: Erstellt und schliesst ein Backend bzw. eine Server-Instanz
// ABHAENGIGKEITEN: neural, api, x/text (Zahlenformat)
// HINWEISE: Inputs sind zufaellige Planes, der erste Aufruf zaehlt als Aufwaermen

package cmd

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lczero/lc0go/api"
	"github.com/lczero/lc0go/envconfig"
	"github.com/lczero/lc0go/neural"
)

type benchOptions struct {
	backend     string
	backendOpts string
	batchSize   int
	iterations  int
	seed        uint64
}

type benchResult struct {
	backend   string
	positions int
	elapsed   time.Duration
}

func (r benchResult) write(w io.Writer) {
	p := message.NewPrinter(language.English)
	rate := float64(r.positions) / r.elapsed.Seconds()
	p.Fprintf(w, "%s: %d positions in %v, %.0f positions/s\n", r.backend, r.positions, r.elapsed.Round(time.Millisecond), rate)
}

// BenchHandler - Misst den Durchsatz eines Backends
func BenchHandler(cmd *cobra.Command, _ []string) error {
	var opts benchOptions
	opts.backend, _ = cmd.Flags().GetString("backend")
	opts.backendOpts, _ = cmd.Flags().GetString("backend-opts")
	opts.batchSize, _ = cmd.Flags().GetInt("batch-size")
	opts.iterations, _ = cmd.Flags().GetInt("iterations")
	seed, _ := cmd.Flags().GetInt64("seed")
	opts.seed = uint64(seed)
	remote, _ := cmd.Flags().GetBool("remote")

	if opts.batchSize <= 0 || opts.iterations <= 0 {
		return fmt.Errorf("batch-size and iterations must be positive")
	}

	res, err := runBench(cmd, opts, remote)
	if err != nil {
		return err
	}

	res.write(cmd.OutOrStdout())
	return nil
}

func runBench(cmd *cobra.Command, opts benchOptions, remote bool) (benchResult, error) {
	if !remote {
		if err := prepareRegistry(neural.DefaultRegistry); err != nil {
			return benchResult{}, err
		}
		return benchLocal(cmd.Context(), neural.DefaultRegistry, opts)
	}

	if err := checkServerHeartbeat(cmd, nil); err != nil {
		return benchResult{}, err
	}
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return benchResult{}, err
	}
	return benchRemote(cmd.Context(), client, opts)
}

func benchLocal(ctx context.Context, r *neural.Registry, opts benchOptions) (benchResult, error) {
	name := opts.backend
	if name == "" {
		names, err := r.ListNames()
		if err != nil {
			return benchResult{}, err
		}
		if len(names) == 0 {
			return benchResult{}, neural.ErrNoBackends
		}
		name = names[0]
	}

	cfg, err := neural.NewConfig(name, opts.backendOpts)
	if err != nil {
		return benchResult{}, err
	}
	b, err := r.CreateFromConfig(cfg)
	if err != nil {
		return benchResult{}, err
	}
	defer b.Close()

	bufs, err := neural.NewBatchBuffersFor(b, opts.batchSize)
	if err != nil {
		return benchResult{}, err
	}
	defer bufs.Release()

	rng := rand.New(rand.NewPCG(opts.seed, 0))
	fillRandom(bufs, opts.batchSize, rng)

	// Aufwaermen
	if err := neural.RunInference(ctx, b, bufs, opts.batchSize); err != nil {
		return benchResult{}, err
	}

	start := time.Now()
	for range opts.iterations {
		if err := neural.RunInference(ctx, b, bufs, opts.batchSize); err != nil {
			return benchResult{}, err
		}
	}

	return benchResult{
		backend:   name,
		positions: opts.batchSize * opts.iterations,
		elapsed:   time.Since(start),
	}, nil
}

func benchRemote(ctx context.Context, client *api.Client, opts benchOptions) (benchResult, error) {
	inst, err := client.CreateInstance(ctx, &api.CreateInstanceRequest{Backend: opts.backend, Options: opts.backendOpts})
	if err != nil {
		return benchResult{}, err
	}
	defer client.DeleteInstance(context.WithoutCancel(ctx), inst.ID) //nolint:errcheck

	rng := rand.New(rand.NewPCG(opts.seed, 0))
	req := &api.EvaluateRequest{Instance: inst.ID, Positions: make([]api.Position, opts.batchSize)}
	for i := range req.Positions {
		planes := make([]api.Plane, neural.InputPlanes)
		for j := range planes {
			planes[j] = randomPlane(rng)
		}
		req.Positions[i].Planes = planes
	}

	if _, err := client.Evaluate(ctx, req); err != nil {
		return benchResult{}, err
	}

	start := time.Now()
	for range opts.iterations {
		if _, err := client.Evaluate(ctx, req); err != nil {
			return benchResult{}, err
		}
	}

	return benchResult{
		backend:   inst.Backend,
		positions: opts.batchSize * opts.iterations,
		elapsed:   time.Since(start),
	}, nil
}

// fillRandom belegt die Inputs der ersten n Positionen mit zufaelligen Planes
func fillRandom(bufs *neural.BatchBuffers, n int, rng *rand.Rand) {
	for pos := range n {
		for plane := range neural.InputPlanes {
			p := randomPlane(rng)
			bufs.SetPlane(pos, plane, p.Mask, p.Value)
		}
	}
}

// randomPlane - duenn besetztes Bitboard wie bei Figuren-Planes
func randomPlane(rng *rand.Rand) api.Plane {
	return api.Plane{
		Mask:  rng.Uint64() & rng.Uint64() & rng.Uint64(),
		Value: 1,
	}
}

// newBenchCmd - Erstellt den bench Command
func newBenchCmd() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure backend throughput",
		Args:  cobra.ExactArgs(0),
		RunE:  BenchHandler,
	}

	benchCmd.Flags().String("backend", envconfig.Backend(), "Backend to benchmark (default: first listed)")
	benchCmd.Flags().String("backend-opts", envconfig.BackendOpts(), "Backend options, e.g. \"threads=4,precision=fp16\"")
	benchCmd.Flags().Int("batch-size", 256, "Positions per evaluation")
	benchCmd.Flags().Int("iterations", 10, "Number of timed evaluations")
	benchCmd.Flags().Int64("seed", 1, "Seed for the random input planes")
	benchCmd.Flags().Bool("remote", false, "Benchmark through a running server")

	return benchCmd
}
