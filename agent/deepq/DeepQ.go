// Package deepq implements deep Q-learning with masked action
// selection. Actions whose mask entry is false on the current timestep
// are never selected, neither greedily nor during exploration.
package deepq

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	env "github.com/Zyzzyva0381/dynamic-diffuser/environment"
	"github.com/Zyzzyva0381/dynamic-diffuser/network"
	"github.com/Zyzzyva0381/dynamic-diffuser/replay"
	ts "github.com/Zyzzyva0381/dynamic-diffuser/timestep"
)

// DeepQ implements the deep Q-learning algorithm with experience
// replay and a Polyak-averaged target network. The MSE TD error is
// minimized with Adam.
type DeepQ struct {
	// Batch-1 network for action selection
	policyNet network.Network
	policyVM  G.VM

	// Network whose weights are adapted, taking batches of inputs
	trainNet   network.Network
	trainNetVM G.VM
	solver     G.Solver

	// Network providing the update target for a batch of inputs
	targetNet   network.Network
	targetNetVM G.VM

	// Target network update schedule
	tau                  float64
	targetUpdateInterval int
	gradientSteps        int

	// Input nodes of the trainNet graph. For the update
	//
	//	Q(s, a) <- Q(s, a) + α * (r + γ' * max[Q'(s', a')] - Q(s, a)) ∇Q(s, a)
	//
	// nextStateActionValues provides Q'(s', a') for all a' in s' and is
	// computed by targetNet; discounts provides γ', which is zero past
	// a terminal step.
	nextStateActionValues *G.Node
	rewards               *G.Node
	discounts             *G.Node
	selectedActions       *G.Node // One-hot actions taken at the states

	replay *replay.Buffer

	// Previous state and action, kept to form replay transitions
	step       ts.TimeStep
	prevAction int

	numActions     int
	batchSize      int
	gamma          float64
	learningStarts int

	epsilon float64
	rng     *rand.Rand
	eval    bool
}

// New creates and returns a new DeepQ agent acting in environment e
func New(e env.Environment, config Config, seed int64) (*DeepQ, error) {
	if e.ActionSpec().Type != env.Action {
		return nil, fmt.Errorf("deepq: invalid action spec")
	}
	if e.ActionSpec().Cardinality != env.Discrete {
		return nil, fmt.Errorf("deepq: cannot use non-discrete actions")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	features := e.ObservationSpec().Shape.Len()
	numActions := int(e.ActionSpec().UpperBound.AtVec(0)) + 1
	batchSize := config.BatchSize

	// Network for selecting single actions
	g := G.NewGraph()
	policyNet, err := network.NewQNetwork(features, 1, numActions, g,
		config.PolicyLayers, config.InitWFn, config.Activations)
	if err != nil {
		return nil, fmt.Errorf("deepq: could not create policy network: %v",
			err)
	}
	policyVM := G.NewTapeMachine(g)

	// Network which learns the weights
	trainNet, err := policyNet.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("deepq: could not create learning network: %v",
			err)
	}
	gTrain := trainNet.Graph()

	// Network which provides the update target
	targetNet, err := policyNet.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("deepq: could not create target network: %v",
			err)
	}
	targetNetVM := G.NewTapeMachine(targetNet.Graph())

	// Create nodes to compute the update target: r + γ' * max[Q'(s', a')]
	nextStateActionValues := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("targetActionVals"))
	rewards := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("reward"))
	discounts := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("discount"))

	updateTarget := G.Must(G.Max(nextStateActionValues, 1))
	updateTarget = G.Must(G.HadamardProd(updateTarget, discounts))
	updateTarget = G.Must(G.Add(updateTarget, rewards))

	// One-hot actions taken at the previous states, needed to pick the
	// correct action value out of the numActions network outputs
	selectedActions := G.NewMatrix(gTrain, tensor.Float64,
		G.WithName("actionSelected"), G.WithShape(batchSize, numActions))
	selectedActionsValue := G.Must(G.HadamardProd(trainNet.Prediction(),
		selectedActions))
	selectedActionsValue = G.Must(G.Sum(selectedActionsValue, 1))

	// Mean squarred TD error
	losses := G.Must(G.Sub(updateTarget, selectedActionsValue))
	losses = G.Must(G.Square(losses))
	cost := G.Must(G.Mean(losses))

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("deepq: could not compute gradient: %v", err)
	}

	trainNetVM := G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))
	adam := G.NewAdamSolver(G.WithLearnRate(config.LearningRate),
		G.WithBatchSize(float64(batchSize)))

	buffer, err := replay.New(config.ReplayCapacity, batchSize, features,
		numActions, seed)
	if err != nil {
		return nil, fmt.Errorf("deepq: could not create replay buffer: %v",
			err)
	}

	return &DeepQ{
		policyNet:             policyNet,
		policyVM:              policyVM,
		trainNet:              trainNet,
		trainNetVM:            trainNetVM,
		solver:                adam,
		targetNet:             targetNet,
		targetNetVM:           targetNetVM,
		tau:                   config.Tau,
		targetUpdateInterval:  config.TargetUpdateInterval,
		nextStateActionValues: nextStateActionValues,
		rewards:               rewards,
		discounts:             discounts,
		selectedActions:       selectedActions,
		replay:                buffer,
		numActions:            numActions,
		batchSize:             batchSize,
		gamma:                 config.Gamma,
		learningStarts:        config.LearningStarts,
		epsilon:               config.Epsilon,
		rng:                   rand.New(rand.NewSource(seed)),
	}, nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DeepQ) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observefirst: timestep %d is not the first of "+
			"its episode", t.Number)
	}
	d.step = t
	return nil
}

// Observe records that prevAction led from the last observed timestep
// to nextStep
func (d *DeepQ) Observe(action int, nextStep ts.TimeStep) error {
	if action < 0 || action >= d.numActions {
		return fmt.Errorf("observe: action %d out of range [0, %d)", action,
			d.numActions)
	}

	transition := ts.NewTransition(d.step, action, nextStep)
	if err := d.replay.Add(transition); err != nil {
		return fmt.Errorf("observe: could not record transition: %v", err)
	}

	d.step = nextStep
	d.prevAction = action
	return nil
}

// Step updates the weights of the agent's value networks. Until the
// replay buffer holds enough transitions for learning to start, Step
// is a no-op.
func (d *DeepQ) Step() error {
	if d.replay.Len() < d.learningStarts {
		return nil
	}

	states, actions, rewards, dones, nextStates, err := d.replay.Sample()
	if replay.IsEmptyBuffer(err) || replay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("step: could not sample replay buffer: %v", err)
	}

	// Bootstrapping stops at terminal steps
	discounts := make([]float64, len(dones))
	for i, done := range dones {
		discounts[i] = d.gamma * (1.0 - done)
	}

	onehot := tensor.New(tensor.WithShape(d.batchSize, d.numActions),
		tensor.WithBacking(actions))
	if err := G.Let(d.selectedActions, onehot); err != nil {
		return fmt.Errorf("step: could not set selected actions: %v", err)
	}

	if err := d.trainNet.SetInput(states); err != nil {
		return fmt.Errorf("step: could not set trainNet input: %v", err)
	}
	if err := d.targetNet.SetInput(nextStates); err != nil {
		return fmt.Errorf("step: could not set target net input: %v", err)
	}

	// Compute the next state-action values
	if err := d.targetNetVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run target network: %v", err)
	}
	if err := G.Let(d.nextStateActionValues, d.targetNet.Output()); err != nil {
		return fmt.Errorf("step: could not set next state-action values: %v",
			err)
	}
	d.targetNetVM.Reset()

	rewardTensor := tensor.New(tensor.WithBacking(rewards),
		tensor.WithShape(d.batchSize))
	if err := G.Let(d.rewards, rewardTensor); err != nil {
		return fmt.Errorf("step: could not set rewards: %v", err)
	}

	discountTensor := tensor.New(tensor.WithBacking(discounts),
		tensor.WithShape(d.batchSize))
	if err := G.Let(d.discounts, discountTensor); err != nil {
		return fmt.Errorf("step: could not set discounts: %v", err)
	}

	// Run the learning step
	if err := d.trainNetVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run learning step: %v", err)
	}
	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		return fmt.Errorf("step: could not adapt weights: %v", err)
	}
	d.trainNetVM.Reset()
	d.gradientSteps++

	// Track the learned weights with the target network
	if d.gradientSteps%d.targetUpdateInterval == 0 {
		if d.tau == 1.0 {
			err = d.targetNet.Set(d.trainNet)
		} else {
			err = d.targetNet.Polyak(d.trainNet, d.tau)
		}
		if err != nil {
			return fmt.Errorf("step: could not update target network: %v", err)
		}
	}

	if err := d.policyNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("step: could not update policy network: %v", err)
	}
	return nil
}

// SelectAction returns an action for timestep t, chosen ε-greedily
// over the legal actions of t's mask. Greedy ties break toward the
// lowest action index so that equal-value states act reproducibly.
func (d *DeepQ) SelectAction(t ts.TimeStep) int {
	if len(t.Mask) != d.numActions {
		panic(fmt.Sprintf("selectaction: mask has %d entries, want %d",
			len(t.Mask), d.numActions))
	}

	legal := make([]int, 0, d.numActions)
	for a, ok := range t.Mask {
		if ok {
			legal = append(legal, a)
		}
	}
	if len(legal) == 0 {
		panic("selectaction: no legal action")
	}

	epsilon := d.epsilon
	if d.eval {
		epsilon = 0.0
	}
	if d.rng.Float64() < epsilon {
		return legal[d.rng.Intn(len(legal))]
	}

	if err := d.policyNet.SetInput(rawData(t.Observation)); err != nil {
		panic(fmt.Sprintf("selectaction: %v", err))
	}
	if err := d.policyVM.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: could not run policy network: %v",
			err))
	}
	values := d.policyNet.Output().Data().([]float64)
	d.policyVM.Reset()

	best, bestValue := -1, math.Inf(-1)
	for _, a := range legal {
		if values[a] > bestValue {
			best, bestValue = a, values[a]
		}
	}
	return best
}

// SetEpsilon sets the exploration rate of the behaviour policy
func (d *DeepQ) SetEpsilon(epsilon float64) {
	d.epsilon = epsilon
}

// Epsilon returns the exploration rate of the behaviour policy
func (d *DeepQ) Epsilon() float64 {
	return d.epsilon
}

// Eval sets the agent into evaluation mode, where it acts greedily
func (d *DeepQ) Eval() {
	d.eval = true
}

// Train sets the agent into training mode
func (d *DeepQ) Train() {
	d.eval = false
}

// IsEval indicates whether the agent is in evaluation mode
func (d *DeepQ) IsEval() bool {
	return d.eval
}

// EndEpisode performs cleanup at the end of an episode
func (d *DeepQ) EndEpisode() {}

// Save persists the learned weights to path
func (d *DeepQ) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	defer f.Close()

	if err := network.Save(d.trainNet, f); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load restores weights previously persisted with Save into every
// network of the agent, target network included.
func (d *DeepQ) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load: %v", err)
	}
	defer f.Close()

	net, err := network.Load(f)
	if err != nil {
		return fmt.Errorf("load: %v", err)
	}

	for _, target := range []network.Network{
		d.trainNet, d.targetNet, d.policyNet,
	} {
		if err := target.Set(net); err != nil {
			return fmt.Errorf("load: could not set weights: %v", err)
		}
	}
	return nil
}

// Close releases the virtual machines backing the agent's networks
func (d *DeepQ) Close() error {
	for _, vm := range []G.VM{d.policyVM, d.trainNetVM, d.targetNetVM} {
		if err := vm.Close(); err != nil {
			return fmt.Errorf("close: %v", err)
		}
	}
	return nil
}

// rawData extracts the backing slice of a flattened observation
func rawData(obs mat.Vector) []float64 {
	if v, ok := obs.(*mat.VecDense); ok && v.RawVector().Inc == 1 {
		return v.RawVector().Data
	}

	data := make([]float64, obs.Len())
	for i := range data {
		data[i] = obs.AtVec(i)
	}
	return data
}
