// Package network implements the Q-value function approximator on a
// gorgonia computational graph.
package network

import (
	G "gorgonia.org/gorgonia"
)

// Network is an opaque differentiable mapping from a state vector to
// one value per action. Two Networks with the same architecture can
// track each other through Set (exact copy) and Polyak (soft update).
type Network interface {
	Graph() *G.ExprGraph

	// Clone copies the network, weights included, onto a fresh graph
	Clone() (Network, error)

	// CloneWithBatch copies the network onto a fresh graph with a new
	// input batch size
	CloneWithBatch(int) (Network, error)

	BatchSize() int
	Features() int
	Outputs() int

	// SetInput sets the value of the input node before the graph runs
	SetInput([]float64) error

	// Set overwrites this network's weights with source's weights. The
	// two networks stay independent value holders; no aliasing.
	Set(source Network) error

	// Polyak moves this network's weights toward source's weights by
	// interpolation factor tau: w <- tau*source + (1-tau)*w
	Polyak(source Network, tau float64) error

	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Output returns the value computed for Prediction by the last run
	// of the graph
	Output() G.Value

	// Prediction returns the graph node holding the per-action values
	Prediction() *G.Node
}
