package training

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/predstab/predstab/checkpoints"
)

// ErrInvalidResumeState indicates a checkpoint whose resume epoch exceeds the
// configured total epochs.
var ErrInvalidResumeState = errors.New("invalid resume state")

// Checkpoint file names written under SavePath.
const (
	MostRecentCheckpoint         = "most_recent.json"
	BestCheckpoint               = "best_model.json"
	FinalCheckpoint              = "final_model.json"
	AveragedMostRecentCheckpoint = "averaged_most_recent.json"
	BestAveragedCheckpoint       = "best_averaged_model.json"
	FinalAveragedCheckpoint      = "final_averaged_model.json"
	predsDir                     = "preds"
)

// TrainerConfig wires the trainer's required collaborators and optional
// components. Optional fields may be left zero: no scheduler, no validation
// set, no averaged model, no writer, no checkpointing, no resume.
type TrainerConfig struct {
	Model     Module
	Loss      Loss
	Optimizer Optimizer
	Epochs    int

	TrainLoader *DataLoader
	ValLoader   *DataLoader // optional

	Scheduler         Scheduler // optional
	UpdateSchedOnIter bool      // step the scheduler every iteration instead of every epoch

	GradClipMaxNorm float64 // gradient clipping max norm (disabled if 0)

	AveragedModel *AveragedModel // optional EMA shadow model

	Writer MetricWriter // optional observability sink

	SavePath  string // folder in which to save checkpoints (disabled if empty)
	SavePreds bool   // persist per-sample correctness vectors per epoch

	CheckpointPath         string // path to checkpoint to resume from (disabled if empty)
	AveragedCheckpointPath string // optional shadow model checkpoint to resume from

	Logger *zap.SugaredLogger // optional, defaults to a no-op logger
}

// Trainer runs the epoch state machine: train, validate the primary model,
// validate the shadow model, then persist checkpoints and prediction history.
type Trainer struct {
	cfg    TrainerConfig
	logger *zap.SugaredLogger

	store   *checkpoints.Store
	history *checkpoints.HistoryStore

	startEpoch int

	trainLossMetric *LossMetric
	trainAccMetric  *AccuracyMetric
	valLossMetric   *LossMetric
	valAccMetric    *AccuracyMetric
	avgLossMetric   *LossMetric
	avgAccMetric    *AccuracyMetric

	weightDiff     float64
	bestValLoss    float64
	bestAvgValLoss float64
}

// NewTrainer validates the configuration and, when a checkpoint path is set,
// restores the trainer state before any training starts. A malformed
// checkpoint is fatal here, never at epoch time.
func NewTrainer(cfg TrainerConfig) (*Trainer, error) {
	if cfg.Model == nil || cfg.Loss == nil || cfg.Optimizer == nil {
		return nil, fmt.Errorf("model, loss and optimizer are required")
	}
	if cfg.TrainLoader == nil {
		return nil, fmt.Errorf("a train loader is required")
	}
	if cfg.Epochs < 0 {
		return nil, fmt.Errorf("epochs must be non-negative, got %d", cfg.Epochs)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	t := &Trainer{
		cfg:             cfg,
		logger:          logger,
		store:           checkpoints.NewStore(),
		trainLossMetric: &LossMetric{},
		trainAccMetric:  NewAccuracyMetric(1, false),
		valLossMetric:   &LossMetric{},
		valAccMetric:    NewAccuracyMetric(1, cfg.SavePreds),
		avgLossMetric:   &LossMetric{},
		avgAccMetric:    NewAccuracyMetric(1, cfg.SavePreds),
		bestValLoss:     math.Inf(1),
		bestAvgValLoss:  math.Inf(1),
	}

	if cfg.SavePath != "" && cfg.SavePreds {
		history, err := checkpoints.NewHistoryStore(filepath.Join(cfg.SavePath, predsDir))
		if err != nil {
			return nil, err
		}
		t.history = history
	}

	if cfg.CheckpointPath != "" {
		if err := t.loadFromCheckpoint(cfg.CheckpointPath); err != nil {
			return nil, err
		}
	}
	if cfg.AveragedCheckpointPath != "" {
		if cfg.AveragedModel == nil {
			return nil, fmt.Errorf("averaged checkpoint given but no averaged model configured")
		}
		acp, err := t.store.LoadAveraged(cfg.AveragedCheckpointPath)
		if err != nil {
			return nil, err
		}
		if err := LoadWeights(acp.Weights, cfg.AveragedModel.Module().Parameters()); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// StartEpoch returns the first epoch the next Train call will run.
func (t *Trainer) StartEpoch() int {
	return t.startEpoch
}

// Train runs epochs [startEpoch, Epochs) and writes the final checkpoints.
func (t *Trainer) Train() error {
	t.logger.Infow("beginning training", "start_epoch", t.startEpoch, "epochs", t.cfg.Epochs)
	startTime := time.Now()

	for epoch := t.startEpoch; epoch < t.cfg.Epochs; epoch++ {
		epochStart := time.Now()

		if err := t.trainLoop(epoch); err != nil {
			return fmt.Errorf("training epoch %d failed: %w", epoch, err)
		}

		if t.cfg.ValLoader != nil {
			if err := t.valLoop(epoch, false); err != nil {
				return fmt.Errorf("validation epoch %d failed: %w", epoch, err)
			}
			if t.cfg.AveragedModel != nil {
				if err := t.valLoop(epoch, true); err != nil {
					return fmt.Errorf("averaged validation epoch %d failed: %w", epoch, err)
				}
			}
		}

		if err := t.endLoop(epoch, time.Since(epochStart)); err != nil {
			return fmt.Errorf("end of epoch %d failed: %w", epoch, err)
		}
	}

	t.logger.Infof("finished training, total time: %.2fh", time.Since(startTime).Hours())

	if t.cfg.SavePath != "" {
		if err := t.saveModel(FinalCheckpoint, t.cfg.Epochs); err != nil {
			return err
		}
		if t.cfg.AveragedModel != nil {
			if err := t.saveAveragedModel(FinalAveragedCheckpoint, t.cfg.Epochs); err != nil {
				return err
			}
		}
	}

	return nil
}

// trainLoop runs one training epoch.
func (t *Trainer) trainLoop(epoch int) error {
	t.cfg.Model.Train()
	t.cfg.TrainLoader.Reset()

	for t.cfg.TrainLoader.HasNext() {
		batch, err := t.cfg.TrainLoader.Next()
		if err != nil {
			return err
		}

		t.cfg.Optimizer.ZeroGrad()

		out, err := t.cfg.Model.Forward(batch.Data)
		if err != nil {
			return fmt.Errorf("forward pass failed: %v", err)
		}
		loss, err := t.cfg.Loss.Forward(out, batch.Labels)
		if err != nil {
			return fmt.Errorf("loss computation failed: %v", err)
		}
		grad, err := t.cfg.Loss.Backward(out, batch.Labels)
		if err != nil {
			return fmt.Errorf("loss gradient failed: %v", err)
		}
		if err := t.cfg.Model.Backward(grad); err != nil {
			return fmt.Errorf("backward pass failed: %v", err)
		}

		if t.cfg.GradClipMaxNorm > 0 {
			ClipGradNorm(t.cfg.Model.Parameters(), t.cfg.GradClipMaxNorm)
		}

		if err := t.cfg.Optimizer.Step(); err != nil {
			return fmt.Errorf("optimizer step failed: %v", err)
		}

		if t.cfg.AveragedModel != nil {
			t.cfg.AveragedModel.Update(t.cfg.Model)
		}

		if t.cfg.Scheduler != nil && t.cfg.UpdateSchedOnIter {
			t.cfg.Scheduler.Step()
			t.cfg.Optimizer.UpdateLearningRate(t.cfg.Scheduler.LastLR())
		}

		t.trainLossMetric.Update(loss, len(batch.Labels))
		if err := t.trainAccMetric.Update(out, batch.Labels); err != nil {
			return err
		}
	}

	if t.cfg.Scheduler != nil && !t.cfg.UpdateSchedOnIter {
		t.cfg.Scheduler.Step()
		t.cfg.Optimizer.UpdateLearningRate(t.cfg.Scheduler.LastLR())
	}

	return nil
}

// valLoop evaluates either the primary model or the shadow model over the
// validation set, into separate accumulators.
func (t *Trainer) valLoop(epoch int, onAveraged bool) error {
	model := t.cfg.Model
	lossMetric, accMetric := t.valLossMetric, t.valAccMetric
	if onAveraged {
		model = t.cfg.AveragedModel.Module()
		lossMetric, accMetric = t.avgLossMetric, t.avgAccMetric
	}

	model.Eval()
	t.cfg.ValLoader.Reset()

	for t.cfg.ValLoader.HasNext() {
		batch, err := t.cfg.ValLoader.Next()
		if err != nil {
			return err
		}
		out, err := model.Forward(batch.Data)
		if err != nil {
			return fmt.Errorf("validation forward pass failed: %v", err)
		}
		loss, err := t.cfg.Loss.Forward(out, batch.Labels)
		if err != nil {
			return fmt.Errorf("validation loss computation failed: %v", err)
		}
		lossMetric.Update(loss, len(batch.Labels))
		if err := accMetric.Update(out, batch.Labels); err != nil {
			return err
		}
	}

	return nil
}

// endLoop logs the epoch summary, emits scalars, persists checkpoints and
// prediction history, and resets all per-epoch accumulators.
func (t *Trainer) endLoop(epoch int, epochTime time.Duration) error {
	if t.cfg.AveragedModel != nil {
		t.weightDiff = WeightDiffNorm(t.cfg.Model, t.cfg.AveragedModel.Module())
	}

	t.logger.Info(t.epochStr(epoch, epochTime))

	if t.cfg.Writer != nil {
		t.writeScalars(epoch)
	}

	if t.cfg.SavePath != "" {
		if err := t.saveModel(MostRecentCheckpoint, epoch+1); err != nil {
			return err
		}
		if t.cfg.ValLoader != nil {
			valLoss := t.valLossMetric.Compute()
			if t.bestValLoss > valLoss {
				t.bestValLoss = valLoss
				if err := t.saveModel(BestCheckpoint, epoch+1); err != nil {
					return err
				}
			}
		}

		if t.cfg.AveragedModel != nil {
			if err := t.saveAveragedModel(AveragedMostRecentCheckpoint, epoch+1); err != nil {
				return err
			}
			if t.cfg.ValLoader != nil {
				avgValLoss := t.avgLossMetric.Compute()
				if t.bestAvgValLoss > avgValLoss {
					t.bestAvgValLoss = avgValLoss
					if err := t.saveAveragedModel(BestAveragedCheckpoint, epoch+1); err != nil {
						return err
					}
				}
			}
		}

		if t.history != nil && t.cfg.ValLoader != nil {
			if err := t.history.Save(epoch, checkpoints.Primary, t.valAccMetric.Preds()); err != nil {
				return err
			}
			if t.cfg.AveragedModel != nil {
				if err := t.history.Save(epoch, checkpoints.Averaged, t.avgAccMetric.Preds()); err != nil {
					return err
				}
			}
		}
	}

	t.trainLossMetric.Reset()
	t.trainAccMetric.Reset()
	if t.cfg.ValLoader != nil {
		t.valLossMetric.Reset()
		t.valAccMetric.Reset()
	}
	if t.cfg.AveragedModel != nil {
		t.avgLossMetric.Reset()
		t.avgAccMetric.Reset()
	}

	return nil
}

func (t *Trainer) epochStr(epoch int, epochTime time.Duration) string {
	s := fmt.Sprintf("Epoch %d ", epoch)
	s += fmt.Sprintf("| Train loss: %.3f ", t.trainLossMetric.Compute())
	s += fmt.Sprintf("| Train acc: %.3f ", t.trainAccMetric.Compute())
	if t.cfg.ValLoader != nil {
		s += fmt.Sprintf("| Val loss: %.3f ", t.valLossMetric.Compute())
		s += fmt.Sprintf("| Val acc: %.3f ", t.valAccMetric.Compute())
		if t.cfg.AveragedModel != nil {
			s += fmt.Sprintf("| Avg model val loss: %.3f ", t.avgLossMetric.Compute())
			s += fmt.Sprintf("| Avg model val acc: %.3f ", t.avgAccMetric.Compute())
			s += fmt.Sprintf("| Weight diff: %.3f ", t.weightDiff)
		}
	}
	s += fmt.Sprintf("| Epoch time: %.1fs", epochTime.Seconds())
	return s
}

func (t *Trainer) writeScalars(epoch int) {
	w := t.cfg.Writer
	w.AddScalar("Loss/train", t.trainLossMetric.Compute(), epoch)
	w.AddScalar("Accuracy/train", t.trainAccMetric.Compute(), epoch)

	if t.cfg.ValLoader != nil {
		w.AddScalar("Loss/val", t.valLossMetric.Compute(), epoch)
		w.AddScalar("Accuracy/val", t.valAccMetric.Compute(), epoch)

		if t.cfg.AveragedModel != nil {
			w.AddScalar("Loss/averaged_val", t.avgLossMetric.Compute(), epoch)
			w.AddScalar("Accuracy/averaged_val", t.avgAccMetric.Compute(), epoch)
			w.AddScalar("Model/model_weight_norm", WeightNorm(t.cfg.Model), epoch)
			w.AddScalar("Model/avg_model_weight_norm", WeightNorm(t.cfg.AveragedModel.Module()), epoch)
			w.AddScalar("Model/weight_diff_norm", t.weightDiff, epoch)
		}
	}
	if t.cfg.Scheduler != nil {
		w.AddScalar("Model/lr", t.cfg.Scheduler.LastLR(), epoch)
	}
}

// saveModel writes a full checkpoint. The epoch recorded is the next epoch to
// run.
func (t *Trainer) saveModel(name string, nextEpoch int) error {
	optState, err := t.cfg.Optimizer.GetState()
	if err != nil {
		return fmt.Errorf("failed to snapshot optimizer state: %v", err)
	}

	cp := &checkpoints.Checkpoint{
		Epoch:     nextEpoch,
		Weights:   ExtractWeights(t.cfg.Model.Parameters()),
		Optimizer: optState,
	}
	if t.cfg.Scheduler != nil {
		cp.Scheduler = t.cfg.Scheduler.State()
	}
	return t.store.Save(filepath.Join(t.cfg.SavePath, name), cp)
}

// saveAveragedModel writes the shadow model's smaller checkpoint bundle.
func (t *Trainer) saveAveragedModel(name string, nextEpoch int) error {
	cp := &checkpoints.AveragedCheckpoint{
		Epoch:   nextEpoch,
		Weights: ExtractWeights(t.cfg.AveragedModel.Module().Parameters()),
		Decay:   t.cfg.AveragedModel.Decay(),
	}
	return t.store.SaveAveraged(filepath.Join(t.cfg.SavePath, name), cp)
}

// loadFromCheckpoint restores model weights, optimizer state, scheduler state
// and the start epoch from a full checkpoint.
func (t *Trainer) loadFromCheckpoint(path string) error {
	cp, err := t.store.Load(path)
	if err != nil {
		return err
	}

	if err := LoadWeights(cp.Weights, t.cfg.Model.Parameters()); err != nil {
		return err
	}
	if err := t.cfg.Optimizer.LoadState(cp.Optimizer); err != nil {
		return err
	}
	if t.cfg.Scheduler != nil && cp.Scheduler != nil {
		if err := t.cfg.Scheduler.LoadState(cp.Scheduler); err != nil {
			return err
		}
	}

	t.startEpoch = cp.Epoch
	if t.startEpoch > t.cfg.Epochs {
		return fmt.Errorf("%w: checkpoint resumes at epoch %d but only %d epochs are configured",
			ErrInvalidResumeState, t.startEpoch, t.cfg.Epochs)
	}

	t.logger.Infow("checkpoint loaded", "resume_epoch", t.startEpoch)
	return nil
}

// ExtractWeights copies parameter buffers into checkpoint weight tensors.
func ExtractWeights(params []*Parameter) []checkpoints.WeightTensor {
	weights := make([]checkpoints.WeightTensor, len(params))
	for i, p := range params {
		data := make([]float32, len(p.Data))
		copy(data, p.Data)
		weights[i] = checkpoints.WeightTensor{
			Name:  p.Name,
			Shape: append([]int(nil), p.Shape...),
			Data:  data,
		}
	}
	return weights
}

// LoadWeights copies checkpoint weight tensors back into parameter buffers,
// matching by position and validating sizes.
func LoadWeights(weights []checkpoints.WeightTensor, params []*Parameter) error {
	if len(weights) != len(params) {
		return fmt.Errorf("%w: weight count mismatch: %d weights, %d parameters",
			checkpoints.ErrCorruptCheckpoint, len(weights), len(params))
	}
	for i, w := range weights {
		if len(w.Data) != params[i].NumElems() {
			return fmt.Errorf("%w: weight %s size mismatch: expected %d, got %d",
				checkpoints.ErrCorruptCheckpoint, w.Name, params[i].NumElems(), len(w.Data))
		}
		copy(params[i].Data, w.Data)
	}
	return nil
}

// ClipGradNorm rescales all gradients so their joint Euclidean norm does not
// exceed maxNorm.
func ClipGradNorm(params []*Parameter, maxNorm float64) float64 {
	var sum float64
	for _, p := range params {
		for _, g := range p.Grad {
			sum += float64(g) * float64(g)
		}
	}
	totalNorm := math.Sqrt(sum)
	if totalNorm > maxNorm {
		scale := float32(maxNorm / (totalNorm + 1e-6))
		for _, p := range params {
			for j := range p.Grad {
				p.Grad[j] *= scale
			}
		}
	}
	return totalNorm
}
