// Package experiment runs learning and evaluation loops on a control
// environment
package experiment

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/gosuri/uilive"

	"github.com/Zyzzyva0381/dynamic-diffuser/agent"
	env "github.com/Zyzzyva0381/dynamic-diffuser/environment"
	"github.com/Zyzzyva0381/dynamic-diffuser/experiment/tracker"
	ts "github.com/Zyzzyva0381/dynamic-diffuser/timestep"
)

// Default exploration schedule. Exploration decays once per episode.
const (
	DefaultEpsilonStart = 1.0
	DefaultEpsilonEnd   = 0.1
	DefaultEpsilonDecay = 0.995
)

// Config configures a training run
type Config struct {
	Episodes int // Number of episodes to train for

	// Exploration schedule. The behaviour policy starts at EpsilonStart
	// and is multiplied by EpsilonDecay after every episode, never
	// falling below EpsilonEnd.
	EpsilonStart float64
	EpsilonEnd   float64
	EpsilonDecay float64

	// Weights are checkpointed every CheckpointEvery episodes to
	// CheckpointPath. A zero CheckpointEvery disables checkpointing.
	CheckpointEvery int
	CheckpointPath  string
}

// NewConfig returns a Config with the default exploration schedule
func NewConfig(episodes int) Config {
	return Config{
		Episodes:     episodes,
		EpsilonStart: DefaultEpsilonStart,
		EpsilonEnd:   DefaultEpsilonEnd,
		EpsilonDecay: DefaultEpsilonDecay,
	}
}

// Validate checks that a Config describes a runnable experiment
func (c Config) Validate() error {
	if c.Episodes < 1 {
		return fmt.Errorf("config: episodes must be positive, got %d",
			c.Episodes)
	}
	if c.EpsilonStart < 0 || c.EpsilonStart > 1 {
		return fmt.Errorf("config: epsilon start must be in [0, 1], got %v",
			c.EpsilonStart)
	}
	if c.EpsilonEnd < 0 || c.EpsilonEnd > c.EpsilonStart {
		return fmt.Errorf("config: epsilon end must be in [0, %v], got %v",
			c.EpsilonStart, c.EpsilonEnd)
	}
	if c.EpsilonDecay <= 0 || c.EpsilonDecay > 1 {
		return fmt.Errorf("config: epsilon decay must be in (0, 1], got %v",
			c.EpsilonDecay)
	}
	if c.CheckpointEvery < 0 {
		return fmt.Errorf("config: checkpoint interval cannot be negative, "+
			"got %d", c.CheckpointEvery)
	}
	if c.CheckpointEvery > 0 && c.CheckpointPath == "" {
		return fmt.Errorf("config: checkpointing requires a path")
	}
	return nil
}

// Experiment trains an agent online on an environment, tracking
// experiment data with a set of Trackers and reporting progress on a
// live status line.
type Experiment struct {
	environment env.Environment
	agent       agent.Agent
	config      Config
	trackers    []tracker.Tracker

	status *uilive.Writer
	logger *log.Logger
}

// New creates a new Experiment training a on e
func New(e env.Environment, a agent.Agent, config Config,
	trackers ...tracker.Tracker) (*Experiment, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Experiment{
		environment: e,
		agent:       a,
		config:      config,
		trackers:    trackers,
		status:      uilive.New(),
		logger:      log.New(os.Stderr, "experiment: ", log.LstdFlags),
	}, nil
}

// Register registers a Tracker so that data generated during the
// experiment is recorded
func (e *Experiment) Register(t tracker.Tracker) {
	e.trackers = append(e.trackers, t)
}

// Run trains the agent for the configured number of episodes. Run
// stops early when ctx is cancelled, finishing the current environment
// step first. The environment is closed before Run returns, whatever
// the exit path.
func (e *Experiment) Run(ctx context.Context) error {
	defer e.environment.Close()

	e.status.Start()
	defer e.status.Stop()

	if eg, ok := e.agent.(agent.EGreedyPolicy); ok {
		eg.SetEpsilon(e.config.EpsilonStart)
	}
	e.agent.Train()

	epsilon := e.config.EpsilonStart
	for episode := 1; episode <= e.config.Episodes; episode++ {
		episodeReturn, err := e.runEpisode(ctx)
		if err != nil {
			return fmt.Errorf("run: episode %d: %v", episode, err)
		}

		fmt.Fprintf(e.status, "episode %d/%d  return %.4g  epsilon %.3f\n",
			episode, e.config.Episodes, episodeReturn, epsilon)
		e.status.Flush()

		epsilon = math.Max(e.config.EpsilonEnd,
			epsilon*e.config.EpsilonDecay)
		if eg, ok := e.agent.(agent.EGreedyPolicy); ok {
			eg.SetEpsilon(epsilon)
		}

		if e.config.CheckpointEvery > 0 &&
			episode%e.config.CheckpointEvery == 0 {
			if err := e.checkpoint(); err != nil {
				return fmt.Errorf("run: episode %d: %v", episode, err)
			}
		}

		select {
		case <-ctx.Done():
			e.logger.Printf("stopping after episode %d: %v", episode,
				ctx.Err())
			return e.save()
		default:
		}
	}

	return e.save()
}

// runEpisode runs one episode to its final timestep, returning the
// episodic return
func (e *Experiment) runEpisode(ctx context.Context) (float64, error) {
	step, err := e.environment.Reset()
	if err != nil {
		return 0, fmt.Errorf("could not reset environment: %v", err)
	}
	if err := e.agent.ObserveFirst(step); err != nil {
		return 0, err
	}
	e.track(step)

	episodeReturn := 0.0
	last := false
	for !last {
		action := e.agent.SelectAction(step)

		step, last, err = e.environment.Step(action)
		if err != nil {
			return episodeReturn, fmt.Errorf("could not step environment: %v",
				err)
		}
		episodeReturn += step.Reward
		e.track(step)

		if err := e.agent.Observe(action, step); err != nil {
			return episodeReturn, err
		}
		if err := e.agent.Step(); err != nil {
			return episodeReturn, err
		}

		select {
		case <-ctx.Done():
			// Let the episode's bookkeeping finish, the caller checks
			// the context between episodes
			return episodeReturn, nil
		default:
		}
	}

	e.agent.EndEpisode()
	return episodeReturn, nil
}

// checkpoint persists the agent's weights if the agent supports it
func (e *Experiment) checkpoint() error {
	saver, ok := e.agent.(agent.Saver)
	if !ok {
		return nil
	}
	if err := saver.Save(e.config.CheckpointPath); err != nil {
		return fmt.Errorf("could not checkpoint agent: %v", err)
	}
	return nil
}

// save persists the data of every registered tracker
func (e *Experiment) save() error {
	for _, t := range e.trackers {
		if err := t.Save(); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	return nil
}

// track caches the current timestep in each registered tracker
func (e *Experiment) track(step ts.TimeStep) {
	for _, t := range e.trackers {
		t.Track(step)
	}
}
