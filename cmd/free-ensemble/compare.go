package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/drakos74/free-ensemble/infra/config"
	"github.com/drakos74/free-ensemble/internal/harmonic"
	ensmath "github.com/drakos74/free-ensemble/internal/math"
	"github.com/drakos74/free-ensemble/internal/metrics"
	"github.com/drakos74/free-ensemble/internal/model"
	"github.com/drakos74/free-ensemble/internal/storage"
	jsonstore "github.com/drakos74/free-ensemble/internal/storage/file/json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	matrixLabel     = "matrix"
	statisticsLabel = "statistics"
)

// Run is the registry event of a finished comparison.
type Run struct {
	ID      string        `json:"id"`
	Time    time.Time     `json:"time"`
	Mode    model.Mode    `json:"mode"`
	Names   []string      `json:"names"`
	Aligned bool          `json:"aligned"`
	Mean    float64       `json:"mean"`
	Max     float64       `json:"max"`
	Elapsed time.Duration `json:"elapsed"`
}

func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare FILE...",
		Short: "Compute the similarity matrix of the given ensemble files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCompare,
	}
	cmd.Flags().String("config", "", "YAML config file (default "+config.Path+" when present)")
	cmd.Flags().String("mode", string(model.Shrinkage), "Covariance estimator (shrinkage|maximum-likelihood)")
	cmd.Flags().Bool("align", false, "Superpose all frames onto the first frame of the first ensemble")
	cmd.Flags().Bool("in-place", false, "Overwrite the loaded coordinates when aligning")
	cmd.Flags().Bool("stats", false, "Attach the per ensemble statistics to the stored result")
	cmd.Flags().String("weights", "", "JSON file with the per atom weights")
	cmd.Flags().Int("workers", 0, "Concurrent units of work (0 uses all cpus)")
	cmd.Flags().Float64("jitter", 1e-10, "Relative diagonal regularisation of singular covariances")
	cmd.Flags().String("out", "", "Directory to store the result in")
	cmd.Flags().Int("metrics-port", 0, "Expose prometheus metrics on the given port")
	cmd.Flags().Int("precision", 4, "Decimal places of the printed matrix")
	return cmd
}

// loadConfig loads the config file and applies the changed flags on top of it.
func loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	path, _ := flags.GetString("config")
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	} else if _, err := os.Stat(config.Path); err == nil {
		// the bundled config is expected to be valid
		cfg = config.MustLoad(config.Path)
	}

	if flags.Changed("mode") {
		m, _ := flags.GetString("mode")
		cfg.Mode = model.Mode(m)
	}
	if flags.Changed("align") {
		cfg.Align, _ = flags.GetBool("align")
	}
	if flags.Changed("in-place") {
		cfg.InPlace, _ = flags.GetBool("in-place")
	}
	if flags.Changed("stats") {
		cfg.Statistics, _ = flags.GetBool("stats")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("jitter") {
		cfg.Jitter, _ = flags.GetFloat64("jitter")
	}
	if flags.Changed("out") {
		cfg.Output, _ = flags.GetString("out")
	}
	if flags.Changed("metrics-port") {
		cfg.MetricsPort, _ = flags.GetInt("metrics-port")
	}
	return cfg, cfg.Validate()
}

// loadEnsembles reads the ensemble files. The weights file takes precedence over the weights
// of the ensemble documents, which must otherwise agree with each other.
func loadEnsembles(files []string, weightsFile string) ([]*model.Ensemble, model.Weights, error) {
	var weights model.Weights
	if weightsFile != "" {
		w, err := jsonstore.ReadWeights(weightsFile)
		if err != nil {
			return nil, nil, err
		}
		weights = w
	}
	ensembles := make([]*model.Ensemble, len(files))
	var source string
	for i, f := range files {
		ens, w, err := jsonstore.ReadEnsemble(f)
		if err != nil {
			return nil, nil, err
		}
		ensembles[i] = ens
		switch {
		case w == nil:
		case weightsFile != "":
			log.Debug().Str("file", f).Str("weights", weightsFile).Msg("ignoring weights of ensemble document")
		case source == "":
			log.Debug().Str("file", f).Msg("using weights of ensemble document")
			weights = w
			source = f
		case !sameWeights(weights, w):
			return nil, nil, &model.InvalidWeightError{
				Index:  -1,
				Reason: fmt.Sprintf("weights of '%s' differ from the weights of '%s'", f, source),
			}
		}
	}
	return ensembles, weights, nil
}

func sameWeights(a, b model.Weights) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sinks returns the result storage and run registry for the output directory,
// noop ones when no output is configured.
func sinks(dir string) (storage.Shard, storage.Registry) {
	if dir == "" {
		return storage.VoidShard(), storage.NewVoidRegistry()
	}
	return jsonstore.BlobShard(dir, storage.ResultDir), jsonstore.NewEventRegistry(dir, "")
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	level, _ := cfg.Level()
	zerolog.SetGlobalLevel(level)

	if cfg.MetricsPort > 0 {
		go func() {
			if err := metrics.Serve(metrics.Registry, cfg.MetricsPort); err != nil {
				log.Error().Err(err).Int("port", cfg.MetricsPort).Msg("metrics server stopped")
			}
		}()
	}

	weightsFile, _ := cmd.Flags().GetString("weights")
	ensembles, weights, err := loadEnsembles(args, weightsFile)
	if err != nil {
		return err
	}

	engine, err := harmonic.New().WithMode(cfg.Mode)
	if err != nil {
		return err
	}
	engine = engine.
		WithWeights(weights).
		Align(cfg.Align).
		InPlace(cfg.InPlace).
		Statistics(cfg.Statistics).
		Workers(cfg.Workers).
		Jitter(cfg.Jitter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := engine.Compute(ctx, ensembles)
	if err != nil {
		return err
	}

	precision, _ := cmd.Flags().GetInt("precision")
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s)\n", result.ID, result.Mode)
	fmt.Fprint(out, result.Format(precision))
	if result.Matrix.Len() > 1 {
		i, j, v := result.Closest()
		fmt.Fprintf(out, "closest: %s ~ %s (%s)\n", result.Names[i], result.Names[j], ensmath.Format(v, precision))
		fmt.Fprintf(out, "scores: %s\n", result.Summary().String())
	}
	for _, r := range result.Alignment {
		log.Debug().
			Str("ensemble", r.Name).
			Float64("initial-mean", r.Initial.Avg()).
			Float64("rmsd-mean", r.RMSD.Avg()).
			Float64("rmsd-max", r.RMSD.Max()).
			Msg("alignment")
	}

	shard, registry := sinks(cfg.Output)
	return store(shard, registry, result)
}

// store persists the result in the shard of the run and registers the run.
func store(shard storage.Shard, registry storage.Registry, result *harmonic.Result) error {
	blob, err := shard(result.ID)
	if err != nil {
		return fmt.Errorf("could not open storage for run %s: %w", result.ID, err)
	}
	matrix := *result
	matrix.Statistics = nil
	if err := blob.Store(storage.Key{Run: result.ID, Label: matrixLabel}, matrix); err != nil {
		return fmt.Errorf("could not store result: %w", err)
	}
	if result.Statistics != nil {
		if err := blob.Store(storage.Key{Run: result.ID, Label: statisticsLabel}, result.Statistics); err != nil {
			return fmt.Errorf("could not store statistics: %w", err)
		}
	}

	summary := result.Summary()
	err = registry.Add(storage.K{Label: storage.RunsPath}, Run{
		ID:      result.ID,
		Time:    time.Now(),
		Mode:    result.Mode,
		Names:   result.Names,
		Aligned: result.Aligned,
		Mean:    summary.Avg(),
		Max:     summary.Max(),
		Elapsed: result.Elapsed,
	})
	if err != nil {
		return fmt.Errorf("could not register run: %w", err)
	}
	log.Info().Str("id", result.ID).Msg("stored result")
	return nil
}
