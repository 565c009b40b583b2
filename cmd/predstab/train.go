package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/predstab/predstab/training"
)

var (
	trainEpochs      int
	trainBatchSize   int
	trainLR          float64
	trainMomentum    float64
	trainWeightDecay float64
	trainSeed        int64
	trainFeatures    int
	trainClasses     int
	trainSamples     int
	trainValSamples  int
	trainScheduler   string
	trainSchedOnIter bool
	trainAvgDecay    float64
	trainClipNorm    float64
	trainSavePath    string
	trainSavePreds   bool
	trainResume      string
	trainResumeAvg   string
	trainMetricsFile string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a classifier on synthetic data and record prediction history",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer logger.Sync()
		sugar := logger.Sugar()

		training.SetRandomSeed(trainSeed)

		trainSet := training.NewRandomDataset(trainSamples, trainFeatures, trainClasses, trainSeed)
		valSet := training.NewRandomDataset(trainValSamples, trainFeatures, trainClasses, trainSeed+1)

		trainLoader, err := training.NewDataLoader(trainSet, trainBatchSize, true, trainSeed)
		if err != nil {
			return err
		}
		valLoader, err := training.NewDataLoader(valSet, trainBatchSize, false, trainSeed)
		if err != nil {
			return err
		}

		model := training.NewLinear(trainFeatures, trainClasses, true)
		loss := training.NewCrossEntropyLoss()
		optimizer, err := training.NewSGD(model.Parameters(), trainLR, trainMomentum, trainWeightDecay)
		if err != nil {
			return err
		}

		var scheduler training.Scheduler
		switch trainScheduler {
		case "step":
			scheduler = training.NewStepLR(trainLR, trainEpochs/3, 0.1)
		case "exp":
			scheduler = training.NewExponentialLR(trainLR, 0.95)
		case "cosine":
			scheduler = training.NewCosineAnnealingLR(trainLR, trainEpochs, 0)
		case "none", "":
		default:
			return fmt.Errorf("unknown scheduler %q (want step, exp, cosine or none)", trainScheduler)
		}

		var averaged *training.AveragedModel
		if trainAvgDecay > 0 {
			shadow := training.NewLinear(trainFeatures, trainClasses, true)
			averaged, err = training.NewAveragedModel(shadow, model, trainAvgDecay)
			if err != nil {
				return err
			}
		}

		var writer training.MetricWriter
		if trainMetricsFile != "" {
			w, err := training.NewJSONLWriter(trainMetricsFile)
			if err != nil {
				return err
			}
			defer w.Close()
			writer = w
		}

		trainer, err := training.NewTrainer(training.TrainerConfig{
			Model:                  model,
			Loss:                   loss,
			Optimizer:              optimizer,
			Epochs:                 trainEpochs,
			TrainLoader:            trainLoader,
			ValLoader:              valLoader,
			Scheduler:              scheduler,
			UpdateSchedOnIter:      trainSchedOnIter,
			GradClipMaxNorm:        trainClipNorm,
			AveragedModel:          averaged,
			Writer:                 writer,
			SavePath:               trainSavePath,
			SavePreds:              trainSavePreds,
			CheckpointPath:         trainResume,
			AveragedCheckpointPath: trainResumeAvg,
			Logger:                 sugar,
		})
		if err != nil {
			return err
		}

		return trainer.Train()
	},
}

func init() {
	f := trainCmd.Flags()
	f.IntVarP(&trainEpochs, "epochs", "e", 10, "Number of training epochs")
	f.IntVarP(&trainBatchSize, "batch-size", "b", 32, "Batch size")
	f.Float64VarP(&trainLR, "learning-rate", "l", 0.01, "Learning rate")
	f.Float64Var(&trainMomentum, "momentum", 0.9, "SGD momentum")
	f.Float64Var(&trainWeightDecay, "weight-decay", 0, "L2 weight decay")
	f.Int64Var(&trainSeed, "seed", 42, "Random seed")
	f.IntVar(&trainFeatures, "features", 20, "Input feature dimension")
	f.IntVar(&trainClasses, "classes", 4, "Number of classes")
	f.IntVar(&trainSamples, "train-samples", 1024, "Training set size")
	f.IntVar(&trainValSamples, "val-samples", 256, "Validation set size")
	f.StringVar(&trainScheduler, "scheduler", "none", "LR scheduler (step|exp|cosine|none)")
	f.BoolVar(&trainSchedOnIter, "sched-on-iter", false, "Step the scheduler per iteration instead of per epoch")
	f.Float64Var(&trainAvgDecay, "avg-decay", 0.999, "EMA decay for the averaged model (0 disables)")
	f.Float64Var(&trainClipNorm, "clip-norm", 0, "Gradient clipping max norm (0 disables)")
	f.StringVarP(&trainSavePath, "save-path", "o", "", "Directory for checkpoints and prediction history")
	f.BoolVar(&trainSavePreds, "save-preds", true, "Persist per-sample correctness vectors each epoch")
	f.StringVar(&trainResume, "resume", "", "Checkpoint to resume from")
	f.StringVar(&trainResumeAvg, "resume-averaged", "", "Averaged-model checkpoint to resume from")
	f.StringVar(&trainMetricsFile, "metrics-file", "", "JSONL file for scalar metrics")
}
