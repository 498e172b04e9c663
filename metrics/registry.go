package metrics

import (
	"fmt"
	"maps"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/cortml/cort/ml"
)

// Task is one classification head whose outputs are tracked.
type Task struct {
	Name       string
	Prefix     string
	NumClasses int
}

// TaskSet lists the tracked tasks. The label task always comes first.
type TaskSet []Task

// NewTaskSet returns the label task and, when includeSections is set, the
// section task with the section_ prefix.
func NewTaskSet(numLabels, numSections int, includeSections bool) TaskSet {
	tasks := TaskSet{{Name: "labels", NumClasses: numLabels}}
	if includeSections {
		tasks = append(tasks, Task{Name: "sections", Prefix: ml.SectionPrefix, NumClasses: numSections})
	}
	return tasks
}

// Logs maps metric names to their current values.
type Logs map[string]float64

// WithPrefix returns a copy with every key prefixed.
func (l Logs) WithPrefix(prefix string) Logs {
	out := make(Logs, len(l))
	for k, v := range l {
		out[prefix+k] = v
	}
	return out
}

// Merge returns a copy of l updated with o.
func (l Logs) Merge(o Logs) Logs {
	out := maps.Clone(l)
	if out == nil {
		out = make(Logs, len(o))
	}
	maps.Copy(out, o)
	return out
}

// Keys returns the keys in sorted order.
func (l Logs) Keys() []string {
	return slices.Sorted(maps.Keys(l))
}

const TotalLoss = "total_loss"

// Registry holds the running metrics of one split, in creation order.
type Registry struct {
	tasks   TaskSet
	metrics *orderedmap.OrderedMap[string, Metric]
}

// NewRegistry creates total_loss plus, per task, the two loss means,
// accuracy, precision, recall and micro/macro F1.
func NewRegistry(tasks TaskSet) *Registry {
	r := &Registry{tasks: tasks, metrics: orderedmap.New[string, Metric]()}
	r.add(NewMean(TotalLoss))

	for _, t := range tasks {
		r.add(NewMean(t.Prefix + ml.OutputContrastiveLoss))
		r.add(NewMean(t.Prefix + ml.OutputCrossEntropyLoss))
		r.add(NewCategoricalAccuracy(t.Prefix + "accuracy"))
		r.add(NewPrecision(t.Prefix + "precision"))
		r.add(NewRecall(t.Prefix + "recall"))
		r.add(NewF1Score(t.Prefix+"micro_f1_score", t.NumClasses, Micro))
		r.add(NewF1Score(t.Prefix+"macro_f1_score", t.NumClasses, Macro))
	}

	return r
}

func (r *Registry) add(m Metric) {
	if _, exists := r.metrics.Set(m.Name(), m); exists {
		panic(fmt.Sprintf("metric %q already registered", m.Name()))
	}
}

// Get returns the metric registered under name.
func (r *Registry) Get(name string) (Metric, bool) {
	return r.metrics.Get(name)
}

// Update feeds the total loss and the model outputs of one step.
func (r *Registry) Update(totalLoss float64, out ml.Outputs) error {
	r.mean(TotalLoss).Update(totalLoss)

	for _, t := range r.tasks {
		for _, key := range []string{ml.OutputContrastiveLoss, ml.OutputCrossEntropyLoss} {
			v, err := out.Get(t.Prefix + key)
			if err != nil {
				return err
			}
			r.mean(t.Prefix + key).Update(v.Item())
		}

		yTrue, err := out.Get(t.Prefix + ml.OutputOneHotLabels)
		if err != nil {
			return err
		}
		yPred, err := out.Get(t.Prefix + ml.OutputProbs)
		if err != nil {
			return err
		}

		for _, name := range []string{"accuracy", "precision", "recall", "micro_f1_score", "macro_f1_score"} {
			m, _ := r.metrics.Get(t.Prefix + name)
			if err := m.(ConfusionMetric).Update(yTrue, yPred); err != nil {
				return fmt.Errorf("%s: %w", m.Name(), err)
			}
		}
	}

	return nil
}

func (r *Registry) mean(name string) *Mean {
	m, _ := r.metrics.Get(name)
	return m.(*Mean)
}

// Snapshot returns the current value of every metric.
func (r *Registry) Snapshot() Logs {
	logs := make(Logs, r.metrics.Len())
	for pair := r.metrics.Oldest(); pair != nil; pair = pair.Next() {
		logs[pair.Key] = pair.Value.Result()
	}
	return logs
}

// Reset clears the state of every metric.
func (r *Registry) Reset() {
	for pair := r.metrics.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.Reset()
	}
}

// Names returns the metric names in creation order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.metrics.Len())
	for pair := r.metrics.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}
