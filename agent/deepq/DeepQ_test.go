package deepq

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	env "github.com/Zyzzyva0381/dynamic-diffuser/environment"
	"github.com/Zyzzyva0381/dynamic-diffuser/network"
	ts "github.com/Zyzzyva0381/dynamic-diffuser/timestep"
)

// stubEnv provides environment specifications without hardware
type stubEnv struct {
	features   int
	numActions int
}

func (s stubEnv) Reset() (ts.TimeStep, error) { return ts.TimeStep{}, nil }

func (s stubEnv) Step(int) (ts.TimeStep, bool, error) {
	return ts.TimeStep{}, false, nil
}

func (s stubEnv) ActionMask() []bool { return nil }

func (s stubEnv) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(s.features, nil)
	return env.NewSpec(shape, env.Observation, shape, shape, env.Continuous)
}

func (s stubEnv) ActionSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lower := mat.NewVecDense(1, []float64{0})
	upper := mat.NewVecDense(1, []float64{float64(s.numActions - 1)})
	return env.NewSpec(shape, env.Action, lower, upper, env.Discrete)
}

func (s stubEnv) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	return env.NewSpec(shape, env.Discount, shape, shape, env.Continuous)
}

func (s stubEnv) Close() error { return nil }

func testConfig() Config {
	config := NewConfig()
	config.PolicyLayers = []int{8}
	config.Activations = []*network.Activation{network.ReLU()}
	config.BatchSize = 4
	config.ReplayCapacity = 32
	config.LearningStarts = 4
	return config
}

func newTestAgent(t *testing.T, features, numActions int,
	config Config) *DeepQ {
	t.Helper()
	d, err := New(stubEnv{features, numActions}, config, 42)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func randTimeStep(rng *rand.Rand, features int, mask []bool,
	number int) ts.TimeStep {
	obs := mat.NewVecDense(features, nil)
	for i := 0; i < features; i++ {
		obs.SetVec(i, rng.NormFloat64())
	}

	stepType := ts.Mid
	if number == 0 {
		stepType = ts.First
	}
	return ts.New(stepType, rng.Float64(), 0.99, obs, mask, number)
}

// Greedy selection must never return an action whose mask entry is
// false, whatever values the untrained network happens to produce.
func TestSelectActionNeverChoosesIllegalAction(t *testing.T) {
	features, numActions := 4, 6
	d := newTestAgent(t, features, numActions, testConfig())
	d.SetEpsilon(0.0)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 500; trial++ {
		mask := make([]bool, numActions)
		legal := 0
		for legal == 0 {
			for a := range mask {
				mask[a] = rng.Intn(2) == 0
				if mask[a] {
					legal++
				}
			}
		}

		step := randTimeStep(rng, features, mask, trial)
		action := d.SelectAction(step)
		if !mask[action] {
			t.Fatalf("trial %d: selected illegal action %d with mask %v",
				trial, action, mask)
		}
	}
}

// With full exploration every legal action is selected with equal
// probability, and illegal actions never.
func TestSelectActionExploresUniformlyOverLegalActions(t *testing.T) {
	features, numActions := 4, 6
	d := newTestAgent(t, features, numActions, testConfig())
	d.SetEpsilon(1.0)

	mask := []bool{true, false, true, false, true, false}
	rng := rand.New(rand.NewSource(13))
	step := randTimeStep(rng, features, mask, 0)

	const draws = 3000
	counts := make([]int, numActions)
	for i := 0; i < draws; i++ {
		counts[d.SelectAction(step)]++
	}

	for a, count := range counts {
		if !mask[a] {
			if count != 0 {
				t.Errorf("illegal action %d selected %d times", a, count)
			}
			continue
		}
		// Expect draws/3 each; allow five standard deviations
		if count < 800 || count > 1200 {
			t.Errorf("legal action %d selected %d times, want near 1000", a,
				count)
		}
	}
}

func TestSelectActionGreedyIsDeterministic(t *testing.T) {
	features, numActions := 4, 6
	d := newTestAgent(t, features, numActions, testConfig())
	d.Eval()

	rng := rand.New(rand.NewSource(29))
	mask := []bool{true, true, true, false, false, false}
	step := randTimeStep(rng, features, mask, 0)

	first := d.SelectAction(step)
	for i := 0; i < 20; i++ {
		if a := d.SelectAction(step); a != first {
			t.Fatalf("greedy selection returned %d after returning %d for "+
				"the same state", a, first)
		}
	}
}

// fillReplay feeds count transitions to the agent
func fillReplay(t *testing.T, d *DeepQ, features, numActions,
	count int) {
	t.Helper()
	rng := rand.New(rand.NewSource(31))

	mask := make([]bool, numActions)
	for a := range mask {
		mask[a] = true
	}

	if err := d.ObserveFirst(randTimeStep(rng, features, mask, 0)); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= count; i++ {
		action := rng.Intn(numActions)
		if err := d.Observe(action, randTimeStep(rng, features, mask,
			i)); err != nil {
			t.Fatal(err)
		}
	}
}

// weights copies the current learnable values of a network
func weights(t *testing.T, n network.Network) [][]float64 {
	t.Helper()
	out := make([][]float64, 0, len(n.Learnables()))
	for _, node := range n.Learnables() {
		data := node.Value().(*tensor.Dense).Data().([]float64)
		out = append(out, append([]float64{}, data...))
	}
	return out
}

func sameWeights(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func TestStepIsNoOpBeforeLearningStarts(t *testing.T) {
	features, numActions := 4, 6
	config := testConfig()
	config.LearningStarts = 10
	d := newTestAgent(t, features, numActions, config)

	fillReplay(t, d, features, numActions, config.LearningStarts-1)

	before := weights(t, d.trainNet)
	if err := d.Step(); err != nil {
		t.Fatal(err)
	}
	if !sameWeights(before, weights(t, d.trainNet)) {
		t.Error("weights changed before learning was allowed to start")
	}
}

func TestStepAdaptsWeightsOnceLearningStarts(t *testing.T) {
	features, numActions := 4, 6
	config := testConfig()
	d := newTestAgent(t, features, numActions, config)

	fillReplay(t, d, features, numActions, config.LearningStarts)

	before := weights(t, d.trainNet)
	if err := d.Step(); err != nil {
		t.Fatal(err)
	}
	if sameWeights(before, weights(t, d.trainNet)) {
		t.Error("weights unchanged by a learning step")
	}

	// The action selection network follows the learned weights
	if !sameWeights(weights(t, d.trainNet), weights(t, d.policyNet)) {
		t.Error("policy network does not track the learned weights")
	}
}

// With tau = 1 every target update copies the learned weights exactly.
func TestTargetMatchesLearnedWeightsWhenTauIsOne(t *testing.T) {
	features, numActions := 4, 6
	config := testConfig()
	config.Tau = 1.0
	d := newTestAgent(t, features, numActions, config)

	fillReplay(t, d, features, numActions, config.LearningStarts)
	if err := d.Step(); err != nil {
		t.Fatal(err)
	}

	if !sameWeights(weights(t, d.trainNet), weights(t, d.targetNet)) {
		t.Error("target network differs from learned weights with tau = 1")
	}
}

// With a small tau the target network lags the learned weights.
func TestTargetLagsLearnedWeightsWhenTauIsSmall(t *testing.T) {
	features, numActions := 4, 6
	config := testConfig()
	config.Tau = 0.005
	d := newTestAgent(t, features, numActions, config)

	fillReplay(t, d, features, numActions, config.LearningStarts)
	if err := d.Step(); err != nil {
		t.Fatal(err)
	}

	if sameWeights(weights(t, d.trainNet), weights(t, d.targetNet)) {
		t.Error("target network tracked learned weights exactly with " +
			"tau = 0.005")
	}
}

func TestSaveLoadRestoresSelection(t *testing.T) {
	features, numActions := 4, 6
	config := testConfig()
	d := newTestAgent(t, features, numActions, config)

	fillReplay(t, d, features, numActions, config.LearningStarts)
	for i := 0; i < 5; i++ {
		if err := d.Step(); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "agent.bin")
	if err := d.Save(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}

	restored, err := New(stubEnv{features, numActions}, config, 99)
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()
	if err := restored.Load(path); err != nil {
		t.Fatal(err)
	}

	if !sameWeights(weights(t, d.trainNet), weights(t, restored.trainNet)) {
		t.Error("restored learned weights differ")
	}
	if !sameWeights(weights(t, d.trainNet), weights(t, restored.targetNet)) {
		t.Error("restored target weights do not match learned weights")
	}

	// Both agents act identically when greedy
	d.Eval()
	restored.Eval()
	rng := rand.New(rand.NewSource(17))
	mask := make([]bool, numActions)
	for a := range mask {
		mask[a] = true
	}
	for trial := 0; trial < 50; trial++ {
		step := randTimeStep(rng, features, mask, trial)
		if got, want := restored.SelectAction(step),
			d.SelectAction(step); got != want {
			t.Fatalf("trial %d: restored agent selected %d, original %d",
				trial, got, want)
		}
	}
}

func TestObserveFirstRejectsMidEpisodeStep(t *testing.T) {
	features, numActions := 4, 6
	d := newTestAgent(t, features, numActions, testConfig())

	mask := make([]bool, numActions)
	for a := range mask {
		mask[a] = true
	}
	rng := rand.New(rand.NewSource(3))

	if err := d.ObserveFirst(randTimeStep(rng, features, mask,
		5)); err == nil {
		t.Error("expected error observing a mid-episode step as first")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	config := testConfig()
	config.Epsilon = 1.5
	if _, err := New(stubEnv{4, 6}, config, 1); err == nil {
		t.Error("expected error for epsilon outside [0, 1]")
	}

	config = testConfig()
	config.LearningStarts = 1
	if _, err := New(stubEnv{4, 6}, config, 1); err == nil {
		t.Error("expected error for learning starts below batch size")
	}
}
