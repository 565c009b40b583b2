package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/predstab/predstab/analysis"
	"github.com/predstab/predstab/checkpoints"
	"github.com/predstab/predstab/plot"
)

var (
	plotsPredsDir   string
	plotsOutDir     string
	plotsServiceURL string
	plotsRunName    string
	plotsWindow     int
	plotsHistogram  bool
	plotsNSamples   int
	plotsRankPolicy string
	plotsSeed       int64
)

var plotsCmd = &cobra.Command{
	Use:   "plots",
	Short: "Analyze a recorded prediction history and emit plot data",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer logger.Sync()
		sugar := logger.Sugar()

		store, err := checkpoints.NewHistoryStore(plotsPredsDir)
		if err != nil {
			return err
		}
		primary, averaged, err := store.LoadHistory()
		if err != nil {
			return err
		}
		if averaged == nil {
			return fmt.Errorf("history in %s has no averaged-model records; analysis needs both prediction streams", plotsPredsDir)
		}
		sugar.Infow("prediction history loaded", "epochs", len(primary), "dir", plotsPredsDir)

		matA, err := analysis.Stack(primary)
		if err != nil {
			return err
		}
		matB, err := analysis.Stack(averaged)
		if err != nil {
			return err
		}
		mats := []*analysis.CorrectnessMatrix{matA, matB}
		labels := []string{"single", "averaged"}

		var payloads []plot.PlotData

		stability, err := analysis.Stability(mats, labels, nil)
		if err != nil {
			return err
		}
		payloads = append(payloads, plot.FromSeries(
			plot.StabilityPlot, "Prediction stability", plotsRunName, stability, "Epochs", "Stability"))

		if plotsHistogram {
			mismatch, err := analysis.MismatchHistogram(mats)
			if err != nil {
				return err
			}
			payloads = append(payloads, plot.FromHistograms(
				plot.MismatchPlot, "Prediction mismatch", plotsRunName,
				[]analysis.Histogram{*mismatch}, "Mismatch ratio"))

			misclass, err := analysis.MisclassificationHistogram(mats, labels)
			if err != nil {
				return err
			}
			payloads = append(payloads, plot.FromHistograms(
				plot.MisclassificationPlot, "Misclassification", plotsRunName,
				misclass, "Misclassification ratio"))
		} else {
			mismatch, err := analysis.Mismatch(mats, labels, nil, plotsWindow)
			if err != nil {
				return err
			}
			payloads = append(payloads, plot.FromSeries(
				plot.MismatchPlot, "Prediction mismatch", plotsRunName, mismatch, "Epochs", "Mismatch ratio"))

			misclass, err := analysis.Misclassification(mats, labels, nil, plotsWindow)
			if err != nil {
				return err
			}
			payloads = append(payloads, plot.FromSeries(
				plot.MisclassificationPlot, "Misclassification", plotsRunName, misclass, "Epoch", "Misclassification ratio"))
		}

		policy := analysis.ParseRankPolicy(plotsRankPolicy)
		rng := rand.New(rand.NewSource(plotsSeed))
		persistence, err := analysis.Persistence(mats, plotsNSamples, policy, rng)
		if err != nil {
			return err
		}
		sugar.Infow("persistence ranking computed", "policy", policy.String(), "indices", persistence.Indices)
		payloads = append(payloads, plot.FromPersistence("Prediction persistence", plotsRunName, persistence))

		if plotsServiceURL != "" {
			cfg := plot.DefaultServiceConfig()
			cfg.BaseURL = plotsServiceURL
			svc := plot.NewService(cfg)
			svc.Enable()
			if err := svc.CheckHealth(); err != nil {
				return fmt.Errorf("plotting sidecar unreachable: %w", err)
			}
			for _, pd := range payloads {
				resp, err := svc.SendWithRetry(pd, cfg)
				if err != nil {
					return err
				}
				sugar.Infow("plot submitted", "plot", pd.PlotType, "url", resp.PlotURL)
			}
			return nil
		}

		if err := os.MkdirAll(plotsOutDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		for _, pd := range payloads {
			js, err := pd.ToJSON()
			if err != nil {
				return err
			}
			path := filepath.Join(plotsOutDir, string(pd.PlotType)+".json")
			if err := os.WriteFile(path, []byte(js), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			sugar.Infow("plot data written", "path", path)
		}
		return nil
	},
}

func init() {
	f := plotsCmd.Flags()
	f.StringVarP(&plotsPredsDir, "preds-dir", "d", "preds", "Directory holding the recorded prediction history")
	f.StringVarP(&plotsOutDir, "out-dir", "o", "plots", "Directory for plot data JSON files")
	f.StringVar(&plotsServiceURL, "service-url", "", "Sidecar plotting service URL (writes JSON files if empty)")
	f.StringVar(&plotsRunName, "run-name", "run", "Run name attached to emitted plots")
	f.IntVarP(&plotsWindow, "window", "w", 0, "Moving-average window for time-series plots (0 disables)")
	f.BoolVar(&plotsHistogram, "histogram", true, "Histogram mode for mismatch and misclassification")
	f.IntVarP(&plotsNSamples, "n-samples", "n", 10, "Number of samples in the persistence strip")
	f.StringVar(&plotsRankPolicy, "rank", "mismatch", "Persistence ranking (mismatch|misclassification|stability|random)")
	f.Int64Var(&plotsSeed, "seed", 42, "Random seed for the random ranking policy")
}
