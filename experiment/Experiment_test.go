package experiment

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	env "github.com/Zyzzyva0381/dynamic-diffuser/environment"
	"github.com/Zyzzyva0381/dynamic-diffuser/experiment/tracker"
	ts "github.com/Zyzzyva0381/dynamic-diffuser/timestep"
)

// scriptedEnv runs fixed-length episodes with a constant reward
type scriptedEnv struct {
	episodeLength int
	reward        float64
	stepNum       int
	closed        bool
}

func (s *scriptedEnv) obs() mat.Vector {
	return mat.NewVecDense(2, []float64{1, 2})
}

func (s *scriptedEnv) mask() []bool { return []bool{true, true} }

func (s *scriptedEnv) Reset() (ts.TimeStep, error) {
	s.stepNum = 0
	return ts.New(ts.First, 0, 1, s.obs(), s.mask(), 0), nil
}

func (s *scriptedEnv) Step(action int) (ts.TimeStep, bool, error) {
	s.stepNum++
	stepType := ts.Mid
	if s.stepNum >= s.episodeLength {
		stepType = ts.Last
	}
	step := ts.New(stepType, s.reward, 1, s.obs(), s.mask(), s.stepNum)
	return step, step.Last(), nil
}

func (s *scriptedEnv) ActionMask() []bool { return s.mask() }

func (s *scriptedEnv) ObservationSpec() env.Spec { return env.Spec{} }
func (s *scriptedEnv) ActionSpec() env.Spec      { return env.Spec{} }
func (s *scriptedEnv) DiscountSpec() env.Spec    { return env.Spec{} }

func (s *scriptedEnv) Close() error {
	s.closed = true
	return nil
}

// countingAgent selects action 0 and counts calls
type countingAgent struct {
	epsilons   []float64
	observes   int
	firsts     int
	steps      int
	episodes   int
	eval       bool
	savedPaths []string
}

func (c *countingAgent) SelectAction(ts.TimeStep) int { return 0 }

func (c *countingAgent) ObserveFirst(ts.TimeStep) error {
	c.firsts++
	return nil
}

func (c *countingAgent) Observe(int, ts.TimeStep) error {
	c.observes++
	return nil
}

func (c *countingAgent) Step() error {
	c.steps++
	return nil
}

func (c *countingAgent) EndEpisode() { c.episodes++ }

func (c *countingAgent) Eval()        { c.eval = true }
func (c *countingAgent) Train()       { c.eval = false }
func (c *countingAgent) IsEval() bool { return c.eval }

func (c *countingAgent) SetEpsilon(e float64) { c.epsilons = append(c.epsilons, e) }
func (c *countingAgent) Epsilon() float64     { return c.epsilons[len(c.epsilons)-1] }

func TestRunTrainsConfiguredEpisodesAndClosesEnvironment(t *testing.T) {
	environment := &scriptedEnv{episodeLength: 4, reward: 0.5}
	a := &countingAgent{}

	config := NewConfig(3)
	exp, err := New(environment, a, config)
	if err != nil {
		t.Fatal(err)
	}

	if err := exp.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !environment.closed {
		t.Error("environment not closed after run")
	}
	if a.firsts != 3 {
		t.Errorf("agent observed %d first steps, want 3", a.firsts)
	}
	if a.observes != 12 || a.steps != 12 {
		t.Errorf("agent saw %d observes and %d learning steps, want 12 "+
			"each", a.observes, a.steps)
	}
	if a.episodes != 3 {
		t.Errorf("agent ended %d episodes, want 3", a.episodes)
	}
}

func TestRunDecaysEpsilonPerEpisode(t *testing.T) {
	environment := &scriptedEnv{episodeLength: 2, reward: 1}
	a := &countingAgent{}

	config := NewConfig(4)
	config.EpsilonStart = 1.0
	config.EpsilonEnd = 0.1
	config.EpsilonDecay = 0.5

	exp, err := New(environment, a, config)
	if err != nil {
		t.Fatal(err)
	}
	if err := exp.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Initial value plus one decay per episode, floored at EpsilonEnd
	want := []float64{1.0, 0.5, 0.25, 0.125, 0.1}
	if len(a.epsilons) != len(want) {
		t.Fatalf("epsilon set %d times, want %d", len(a.epsilons), len(want))
	}
	for i, eps := range a.epsilons {
		if math.Abs(eps-want[i]) > 1e-12 {
			t.Errorf("epsilon %d = %v, want %v", i, eps, want[i])
		}
	}
}

func TestRunRecordsEpisodicReturns(t *testing.T) {
	environment := &scriptedEnv{episodeLength: 5, reward: 2}
	a := &countingAgent{}

	path := filepath.Join(t.TempDir(), "returns.bin")
	returns := tracker.NewReturn(path)

	exp, err := New(environment, a, NewConfig(2), returns)
	if err != nil {
		t.Fatal(err)
	}
	if err := exp.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	recorded := returns.Returns()
	if len(recorded) != 2 {
		t.Fatalf("recorded %d episodic returns, want 2", len(recorded))
	}
	for i, r := range recorded {
		if r != 10 {
			t.Errorf("episode %d return = %v, want 10", i, r)
		}
	}

	loaded, err := tracker.LoadReturns(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded[0] != 10 || loaded[1] != 10 {
		t.Errorf("loaded returns = %v, want [10 10]", loaded)
	}
}

func TestRunStopsEarlyWhenCancelled(t *testing.T) {
	environment := &scriptedEnv{episodeLength: 2, reward: 1}
	a := &countingAgent{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exp, err := New(environment, a, NewConfig(100))
	if err != nil {
		t.Fatal(err)
	}
	if err := exp.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if a.firsts > 1 {
		t.Errorf("ran %d episodes after cancellation, want at most 1",
			a.firsts)
	}
	if !environment.closed {
		t.Error("environment not closed after cancelled run")
	}
}

func TestEvaluateRunsGreedilyAndRestoresTrainingMode(t *testing.T) {
	environment := &scriptedEnv{episodeLength: 3, reward: 1}
	a := &countingAgent{}

	returns, err := Evaluate(context.Background(), environment, a, 2)
	if err != nil {
		t.Fatal(err)
	}

	if len(returns) != 2 || returns[0] != 3 || returns[1] != 3 {
		t.Errorf("evaluation returns = %v, want [3 3]", returns)
	}
	if a.steps != 0 || a.observes != 0 {
		t.Error("evaluation performed learning updates")
	}
	if a.IsEval() {
		t.Error("agent left in evaluation mode")
	}
}
