package checkpoints

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"
)

// Variant names one of the two prediction streams written per epoch.
type Variant string

const (
	Primary  Variant = "primary"
	Averaged Variant = "averaged"
)

// ErrCorruptHistory indicates a prediction-history record that could not be
// decoded or whose header does not match its file name.
var ErrCorruptHistory = errors.New("corrupt prediction history")

// Record field numbers on the wire.
const (
	historyFieldEpoch   = 1
	historyFieldVariant = 2
	historyFieldPreds   = 3
)

// HistoryStore persists one per-sample correctness vector per (epoch,
// variant). Records are protobuf wire format: epoch, variant name, and the
// boolean vector as packed varints. File names are deterministic so a reader
// can discover the full history by probing increasing epoch indices until a
// gap is found.
type HistoryStore struct {
	dir string
}

// NewHistoryStore creates the store directory if needed.
func NewHistoryStore(dir string) (*HistoryStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %v", err)
	}
	return &HistoryStore{dir: dir}, nil
}

// Dir returns the store directory.
func (h *HistoryStore) Dir() string {
	return h.dir
}

func (h *HistoryStore) path(epoch int, v Variant) string {
	if v == Averaged {
		return filepath.Join(h.dir, fmt.Sprintf("%d_average.pred", epoch))
	}
	return filepath.Join(h.dir, fmt.Sprintf("%d.pred", epoch))
}

// Save writes the correctness vector for one epoch and variant, atomically.
func (h *HistoryStore) Save(epoch int, v Variant, preds []bool) error {
	buf := protowire.AppendTag(nil, historyFieldEpoch, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(epoch))
	buf = protowire.AppendTag(buf, historyFieldVariant, protowire.BytesType)
	buf = protowire.AppendString(buf, string(v))

	packed := make([]byte, 0, len(preds))
	for _, p := range preds {
		var b uint64
		if p {
			b = 1
		}
		packed = protowire.AppendVarint(packed, b)
	}
	buf = protowire.AppendTag(buf, historyFieldPreds, protowire.BytesType)
	buf = protowire.AppendBytes(buf, packed)

	path := h.path(epoch, v)
	tmp, err := os.CreateTemp(h.dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create history temp file: %v", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write history record: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close history temp file: %v", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename history record into place: %v", err)
	}
	return nil
}

// Load reads the correctness vector for one epoch and variant. It returns
// ErrNotFound if no record exists.
func (h *HistoryStore) Load(epoch int, v Variant) ([]bool, error) {
	path := h.path(epoch, v)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read history record: %v", err)
	}

	var (
		gotEpoch   = -1
		gotVariant Variant
		preds      []bool
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag in %s", ErrCorruptHistory, path)
		}
		data = data[n:]
		switch {
		case num == historyFieldEpoch && typ == protowire.VarintType:
			val, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad epoch in %s", ErrCorruptHistory, path)
			}
			gotEpoch = int(val)
			data = data[n:]
		case num == historyFieldVariant && typ == protowire.BytesType:
			val, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad variant in %s", ErrCorruptHistory, path)
			}
			gotVariant = Variant(val)
			data = data[n:]
		case num == historyFieldPreds && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad predictions in %s", ErrCorruptHistory, path)
			}
			data = data[n:]
			for len(packed) > 0 {
				val, n := protowire.ConsumeVarint(packed)
				if n < 0 {
					return nil, fmt.Errorf("%w: bad prediction entry in %s", ErrCorruptHistory, path)
				}
				preds = append(preds, val != 0)
				packed = packed[n:]
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad field %d in %s", ErrCorruptHistory, num, path)
			}
			data = data[n:]
		}
	}

	if gotEpoch != epoch || gotVariant != v {
		return nil, fmt.Errorf("%w: record header (%d, %s) does not match %s",
			ErrCorruptHistory, gotEpoch, gotVariant, path)
	}
	if preds == nil {
		return nil, fmt.Errorf("%w: no prediction vector in %s", ErrCorruptHistory, path)
	}
	return preds, nil
}

// LoadHistory reads back the full prediction history, probing epoch 0, 1, ...
// until no primary record is found. When the run tracked an averaged model the
// second return has one row per epoch as well; otherwise it is nil.
func (h *HistoryStore) LoadHistory() (primary, averaged [][]bool, err error) {
	for epoch := 0; ; epoch++ {
		p, err := h.Load(epoch, Primary)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		primary = append(primary, p)

		a, err := h.Load(epoch, Averaged)
		if errors.Is(err, ErrNotFound) {
			if averaged != nil {
				return nil, nil, fmt.Errorf("%w: averaged record missing for epoch %d", ErrCorruptHistory, epoch)
			}
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		averaged = append(averaged, a)
		if len(averaged) != epoch+1 {
			return nil, nil, fmt.Errorf("%w: averaged records do not start at epoch 0", ErrCorruptHistory)
		}
	}
	if len(primary) == 0 {
		return nil, nil, fmt.Errorf("%w: no records in %s", ErrNotFound, h.dir)
	}
	return primary, averaged, nil
}
