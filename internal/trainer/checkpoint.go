package trainer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"

	"eventflow/internal/loss"
)

// WeightSnapshot is an opaque serializable copy of one layer's weights.
type WeightSnapshot struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

func snapshotOf(m *mat.Dense) WeightSnapshot {
	rows, cols := m.Dims()
	data := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		data = append(data, m.RawRowView(r)...)
	}
	return WeightSnapshot{Rows: rows, Cols: cols, Data: data}
}

// Dense rebuilds the snapshot as a matrix.
func (s WeightSnapshot) Dense() *mat.Dense {
	return mat.NewDense(s.Rows, s.Cols, s.Data)
}

// History is the append-only record of one run: per-minibatch training
// metrics, per-evaluation validation and test metrics, and one weight
// snapshot set per checkpoint interval.
type History struct {
	TrainLoss []loss.Value       `json:"train_loss"`
	TrainAcc  []float64          `json:"train_acc"`
	ValidLoss []loss.Value       `json:"valid_loss"`
	ValidAcc  []float64          `json:"valid_acc"`
	TestLoss  []loss.Value       `json:"test_loss"`
	TestAcc   []float64          `json:"test_acc"`
	Weights   [][]WeightSnapshot `json:"weights"`
}

// Checkpoint is what gets persisted at each checkpoint interval.
type Checkpoint struct {
	RunID   string    `json:"run_id"`
	SavedAt time.Time `json:"saved_at"`
	History History   `json:"history"`
}

func (t *Trainer) saveCheckpoint() error {
	ckpt := Checkpoint{RunID: t.runID, SavedAt: time.Now().UTC(), History: t.hist}
	data, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(t.cfg.SaveTo, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint written by a previous run.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	ckpt := &Checkpoint{}
	if err := json.Unmarshal(data, ckpt); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return ckpt, nil
}
