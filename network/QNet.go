package network

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// qNetwork implements a multi-layered perceptron with one output node
// per action, each predicting the value of taking that action.
type qNetwork struct {
	g      *G.ExprGraph
	layers []*fcLayer
	input  *G.Node

	features  int
	outputs   int
	batchSize int

	// Constructor arguments kept for cloning and serialization
	hiddenSizes []int
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewQNetwork creates a new action-value network on graph g. The
// network maps a batch of feature vectors to one value per action. A
// final linear layer is always added so that the network outputs
// exactly outputs predictions; hiddenSizes and activations describe
// only the hidden layers.
func NewQNetwork(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, init G.InitWFn,
	activations []*Activation) (Network, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newqnetwork: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if features < 1 || batch < 1 || outputs < 1 {
		return nil, fmt.Errorf("newqnetwork: features, batch, and outputs "+
			"must be positive: have (%d, %d, %d)", features, batch, outputs)
	}

	input := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, features),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	net := &qNetwork{
		g:           g,
		input:       input,
		features:    features,
		outputs:     outputs,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		activations: activations,
	}
	net.layers = net.buildLayers(g, init)

	if err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newqnetwork: could not compute forward "+
			"pass: %v", err)
	}

	return net, nil
}

// buildLayers adds the hidden layers plus the final linear output layer
// to graph g
func (q *qNetwork) buildLayers(g *G.ExprGraph, init G.InitWFn) []*fcLayer {
	sizes := append(append([]int{}, q.hiddenSizes...), q.outputs)
	acts := append(append([]*Activation{}, q.activations...), Identity())

	layers := make([]*fcLayer, len(sizes))
	in := q.features
	for i, out := range sizes {
		layers[i] = newFCLayer(g, in, out, acts[i], init,
			fmt.Sprintf("fc%d", i))
		in = out
	}
	return layers
}

// fwd performs the forward pass of the qNetwork on the input node
func (q *qNetwork) fwd(input *G.Node) error {
	pred := input
	var err error
	for i, l := range q.layers {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("fwd: could not compute forward pass of "+
				"layer %v: %v", i, err)
		}
	}

	q.prediction = pred
	G.Read(q.prediction, &q.predVal)
	return nil
}

// Graph returns the computational graph of the qNetwork
func (q *qNetwork) Graph() *G.ExprGraph {
	return q.g
}

// Clone clones a qNetwork onto a fresh graph
func (q *qNetwork) Clone() (Network, error) {
	return q.CloneWithBatch(q.batchSize)
}

// CloneWithBatch clones a qNetwork onto a fresh graph with a new input
// batch size
func (q *qNetwork) CloneWithBatch(batchSize int) (Network, error) {
	graph := G.NewGraph()
	input := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batchSize, q.features),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	layers := make([]*fcLayer, len(q.layers))
	for i := range q.layers {
		layers[i] = q.layers[i].cloneTo(graph)
	}

	net := &qNetwork{
		g:           graph,
		layers:      layers,
		input:       input,
		features:    q.features,
		outputs:     q.outputs,
		batchSize:   batchSize,
		hiddenSizes: q.hiddenSizes,
		activations: q.activations,
	}
	if err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone: %v", err)
	}

	return net, nil
}

// BatchSize returns the batch size of inputs to the network
func (q *qNetwork) BatchSize() int {
	return q.batchSize
}

// Features returns the number of features in a single input vector
func (q *qNetwork) Features() int {
	return q.features
}

// Outputs returns the number of action values predicted
func (q *qNetwork) Outputs() int {
	return q.outputs
}

// SetInput sets the value of the input node before running the forward
// pass
func (q *qNetwork) SetInput(input []float64) error {
	if len(input) != q.features*q.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", q.features*q.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(q.input.Shape()...),
	)
	return G.Let(q.input, inputTensor)
}

// Set sets the weights of the qNetwork to be equal to the weights of
// the source network
func (q *qNetwork) Set(source Network) error {
	sourceNodes := source.Learnables()
	nodes := q.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: source has %d learnables, want %d",
			len(sourceNodes), len(nodes))
	}

	for i, node := range nodes {
		cloned := sourceNodes[i].Clone()
		if err := G.Let(node, cloned.(*G.Node).Value()); err != nil {
			return err
		}
	}
	return nil
}

// Polyak sets the weights of the qNetwork to an interpolation between
// its existing weights and the weights of the source network
func (q *qNetwork) Polyak(source Network, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := q.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("polyak: source has %d learnables, want %d",
			len(sourceNodes), len(nodes))
	}

	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		newWeights, err := weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		if err := G.Let(nodes[i], newWeights); err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes in a qNetwork
func (q *qNetwork) Learnables() G.Nodes {
	if q.learnables == nil {
		q.learnables = make(G.Nodes, 0, 2*len(q.layers))
		for _, l := range q.layers {
			q.learnables = append(q.learnables, l.weights, l.bias)
		}
	}
	return q.learnables
}

// Model returns the learnable nodes with their gradients
func (q *qNetwork) Model() []G.ValueGrad {
	if q.model == nil {
		q.model = make([]G.ValueGrad, 0, len(q.Learnables()))
		for _, node := range q.Learnables() {
			q.model = append(q.model, node)
		}
	}
	return q.model
}

// Output returns the per-action values computed by the last run of the
// graph
func (q *qNetwork) Output() G.Value {
	return q.predVal
}

// Prediction returns the node of the computational graph that stores
// the per-action values
func (q *qNetwork) Prediction() *G.Node {
	return q.prediction
}

// GobEncode implements the gob.GobEncoder interface. Weight values
// round-trip exactly; graph topology is rebuilt from the stored sizes
// on decode.
func (q *qNetwork) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	for _, v := range []interface{}{
		q.features, q.batchSize, q.outputs, q.hiddenSizes, q.activations,
	} {
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode network "+
				"shape: %v", err)
		}
	}

	for i, node := range q.Learnables() {
		dense := node.Value().(*tensor.Dense)
		if err := enc.Encode([]int(dense.Shape())); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode shape of "+
				"learnable %v: %v", i, err)
		}
		if err := enc.Encode(dense.Data().([]float64)); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode learnable "+
				"%v: %v", i, err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (q *qNetwork) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var features, batchSize, outputs int
	var hiddenSizes []int
	var activations []*Activation
	for _, v := range []interface{}{
		&features, &batchSize, &outputs, &hiddenSizes, &activations,
	} {
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("gobdecode: could not decode network shape: %v",
				err)
		}
	}

	g := G.NewGraph()
	newNet, err := NewQNetwork(features, batchSize, outputs, g, hiddenSizes,
		G.Zeroes(), activations)
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct network: %v", err)
	}
	net := newNet.(*qNetwork)

	for i, node := range net.Learnables() {
		var shape []int
		if err := dec.Decode(&shape); err != nil {
			return fmt.Errorf("gobdecode: could not decode shape of "+
				"learnable %v: %v", i, err)
		}
		var data []float64
		if err := dec.Decode(&data); err != nil {
			return fmt.Errorf("gobdecode: could not decode learnable %v: %v",
				i, err)
		}

		weights := tensor.New(tensor.WithShape(shape...),
			tensor.WithBacking(data))
		if err := G.Let(node, weights); err != nil {
			return fmt.Errorf("gobdecode: could not set learnable %v: %v", i,
				err)
		}
	}

	*q = *net
	return nil
}

// Save serializes a Network to w. Only networks created by this package
// can be saved.
func Save(n Network, w io.Writer) error {
	net, ok := n.(*qNetwork)
	if !ok {
		return fmt.Errorf("save: unknown network type %T", n)
	}
	return gob.NewEncoder(w).Encode(net)
}

// Load deserializes a Network from r
func Load(r io.Reader) (Network, error) {
	net := &qNetwork{}
	if err := gob.NewDecoder(r).Decode(net); err != nil {
		return nil, fmt.Errorf("load: could not decode network: %v", err)
	}
	return net, nil
}
