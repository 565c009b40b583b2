package training

import (
	"fmt"
	"math/rand"

	"gorgonia.org/tensor"
)

// Dataset interface defines methods that all datasets must implement.
// Samples must keep a stable index across epochs: Get(i) refers to the same
// underlying example for the lifetime of the dataset, which is what makes
// per-sample correctness histories comparable across epochs and model
// variants.
type Dataset interface {
	Len() int
	Get(idx int) (data *tensor.Dense, label int32, err error)
}

// Batch represents a batch of flattened sample data and class labels.
type Batch struct {
	Data   *tensor.Dense // [batch_size, sample_size]
	Labels []int32
}

// DataLoader provides batching and optional seeded shuffling over a Dataset.
// With shuffling disabled the iteration order is the dataset's index order,
// which evaluation relies on.
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
}

// NewDataLoader creates a DataLoader. The seed only matters when shuffle is
// enabled.
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool, seed int64) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		indices:   indices,
	}, nil
}

// Len returns the number of batches in an epoch.
func (dl *DataLoader) Len() int {
	return (dl.dataset.Len() + dl.batchSize - 1) / dl.batchSize
}

// NumSamples returns the number of samples in the underlying dataset.
func (dl *DataLoader) NumSamples() int {
	return dl.dataset.Len()
}

// Reset resets the data loader for a new epoch.
func (dl *DataLoader) Reset() {
	dl.position = 0
	if dl.shuffle {
		for i := len(dl.indices) - 1; i > 0; i-- {
			j := dl.rng.Intn(i + 1)
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		}
	}
}

// HasNext returns true if there are more batches in the current epoch.
func (dl *DataLoader) HasNext() bool {
	return dl.position < len(dl.indices)
}

// Next returns the next batch, or nil once the epoch is complete.
func (dl *DataLoader) Next() (*Batch, error) {
	if dl.position >= len(dl.indices) {
		return nil, nil // End of epoch
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}
	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	return dl.loadBatch(batchIndices)
}

// loadBatch flattens each sample into one row of the batch tensor.
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	first, _, err := dl.dataset.Get(indices[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load sample %d: %v", indices[0], err)
	}
	sampleSize := first.Shape().TotalSize()

	batchSize := len(indices)
	data := make([]float32, batchSize*sampleSize)
	labels := make([]int32, batchSize)

	for i, idx := range indices {
		sample, label, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %v", idx, err)
		}
		sampleData := sample.Data().([]float32)
		if len(sampleData) != sampleSize {
			return nil, fmt.Errorf("sample %d size mismatch: expected %d, got %d", idx, sampleSize, len(sampleData))
		}
		copy(data[i*sampleSize:(i+1)*sampleSize], sampleData)
		labels[i] = label
	}

	return &Batch{
		Data:   tensor.New(tensor.WithShape(batchSize, sampleSize), tensor.WithBacking(data)),
		Labels: labels,
	}, nil
}

// SimpleDataset provides a basic in-memory Dataset.
type SimpleDataset struct {
	data   []*tensor.Dense
	labels []int32
}

// NewSimpleDataset creates a SimpleDataset from parallel sample and label
// slices.
func NewSimpleDataset(data []*tensor.Dense, labels []int32) (*SimpleDataset, error) {
	if len(data) != len(labels) {
		return nil, fmt.Errorf("data and labels must have the same length: got %d and %d", len(data), len(labels))
	}
	return &SimpleDataset{data: data, labels: labels}, nil
}

// Len returns the number of samples in the dataset.
func (ds *SimpleDataset) Len() int {
	return len(ds.data)
}

// Get returns the sample at the given index.
func (ds *SimpleDataset) Get(idx int) (*tensor.Dense, int32, error) {
	if idx < 0 || idx >= len(ds.data) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", idx, len(ds.data))
	}
	return ds.data[idx], ds.labels[idx], nil
}

// RandomDataset generates deterministic pseudo-random classification samples:
// each class has a fixed center and samples scatter around it. Useful for
// demos and tests.
type RandomDataset struct {
	size       int
	features   int
	numClasses int
	samples    []*tensor.Dense
	labels     []int32
}

// NewRandomDataset creates a RandomDataset with the given seed.
func NewRandomDataset(size, features, numClasses int, seed int64) *RandomDataset {
	rng := rand.New(rand.NewSource(seed))

	centers := make([][]float32, numClasses)
	for c := range centers {
		centers[c] = make([]float32, features)
		for i := range centers[c] {
			centers[c][i] = rng.Float32()*2.0 - 1.0 // Range [-1, 1]
		}
	}

	samples := make([]*tensor.Dense, size)
	labels := make([]int32, size)
	for n := 0; n < size; n++ {
		cls := rng.Intn(numClasses)
		data := make([]float32, features)
		for i := range data {
			data[i] = centers[cls][i] + float32(rng.NormFloat64())*0.3
		}
		samples[n] = tensor.New(tensor.WithShape(features), tensor.WithBacking(data))
		labels[n] = int32(cls)
	}

	return &RandomDataset{
		size:       size,
		features:   features,
		numClasses: numClasses,
		samples:    samples,
		labels:     labels,
	}
}

// Len returns the size of the dataset.
func (rd *RandomDataset) Len() int {
	return rd.size
}

// Get returns the sample at the given index.
func (rd *RandomDataset) Get(idx int) (*tensor.Dense, int32, error) {
	if idx < 0 || idx >= rd.size {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", idx, rd.size)
	}
	return rd.samples[idx], rd.labels[idx], nil
}
