package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Zyzzyva0381/dynamic-diffuser/agent/deepq"
	"github.com/Zyzzyva0381/dynamic-diffuser/environment/diffuser"
	"github.com/Zyzzyva0381/dynamic-diffuser/experiment"
	"github.com/Zyzzyva0381/dynamic-diffuser/experiment/tracker"
)

// TrainCommand returns the command that trains a balancing agent on
// the panel
func TrainCommand() *cobra.Command {
	var (
		episodes int
		maxSteps int
		seed     int64

		gamma          float64
		tau            float64
		learningRate   float64
		batchSize      int
		capacity       int
		learningStarts int

		epsilonStart float64
		epsilonEnd   float64
		epsilonDecay float64

		weightsPath     string
		checkpointEvery int
		returnsPath     string
		plotPath        string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a balancing agent on the panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			envConfig := diffuser.NewConfig()
			envConfig.Frames = frames
			envConfig.MaxEpisodeSteps = maxSteps
			envConfig.Settle = settle
			envConfig.Discount = gamma
			envConfig.RewardFloor = rewardFloor

			environment, err := openEnvironment(envConfig)
			if err != nil {
				return fmt.Errorf("train: %v", err)
			}

			agentConfig := deepq.NewConfig()
			agentConfig.Gamma = gamma
			agentConfig.Tau = tau
			agentConfig.LearningRate = learningRate
			agentConfig.BatchSize = batchSize
			agentConfig.ReplayCapacity = capacity
			agentConfig.LearningStarts = learningStarts
			agentConfig.Epsilon = epsilonStart

			a, err := deepq.New(environment, agentConfig, seed)
			if err != nil {
				environment.Close()
				return fmt.Errorf("train: %v", err)
			}
			defer a.Close()

			expConfig := experiment.NewConfig(episodes)
			expConfig.EpsilonStart = epsilonStart
			expConfig.EpsilonEnd = epsilonEnd
			expConfig.EpsilonDecay = epsilonDecay
			expConfig.CheckpointEvery = checkpointEvery
			expConfig.CheckpointPath = weightsPath

			returns := tracker.NewReturn(returnsPath)
			exp, err := experiment.New(environment, a, expConfig, returns)
			if err != nil {
				environment.Close()
				return fmt.Errorf("train: %v", err)
			}

			// Ctrl-C finishes the current episode, saves, and exits
			ctx, stop := signal.NotifyContext(cmd.Context(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := exp.Run(ctx); err != nil {
				return fmt.Errorf("train: %v", err)
			}

			if err := a.Save(weightsPath); err != nil {
				return fmt.Errorf("train: %v", err)
			}
			log.Printf("saved weights to %v", weightsPath)

			if plotPath != "" {
				if err := experiment.PlotReturns(returns.Returns(),
					plotPath); err != nil {
					return fmt.Errorf("train: %v", err)
				}
				log.Printf("saved learning curve to %v", plotPath)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&episodes, "episodes", "e", 500,
		"Number of episodes to train for")
	cmd.Flags().IntVar(&maxSteps, "max-steps",
		diffuser.DefaultMaxEpisodeSteps, "Step budget per episode")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")

	cmd.Flags().Float64Var(&gamma, "gamma", deepq.DefaultGamma,
		"Reward discount")
	cmd.Flags().Float64Var(&tau, "tau", deepq.DefaultTau,
		"Target network averaging constant")
	cmd.Flags().Float64Var(&learningRate, "lr", deepq.DefaultLearningRate,
		"Adam step size")
	cmd.Flags().IntVar(&batchSize, "batch", deepq.DefaultBatchSize,
		"Replay sample size")
	cmd.Flags().IntVar(&capacity, "capacity", deepq.DefaultReplayCapacity,
		"Replay buffer capacity")
	cmd.Flags().IntVar(&learningStarts, "learning-starts",
		deepq.DefaultLearningStarts,
		"Transitions recorded before updates begin")

	cmd.Flags().Float64Var(&epsilonStart, "eps-start",
		experiment.DefaultEpsilonStart, "Initial exploration rate")
	cmd.Flags().Float64Var(&epsilonEnd, "eps-end",
		experiment.DefaultEpsilonEnd, "Final exploration rate")
	cmd.Flags().Float64Var(&epsilonDecay, "eps-decay",
		experiment.DefaultEpsilonDecay, "Per-episode exploration decay")

	cmd.Flags().StringVarP(&weightsPath, "weights", "w", "weights.bin",
		"Where to save the learned weights")
	cmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 10,
		"Episodes between weight checkpoints, 0 to disable")
	cmd.Flags().StringVar(&returnsPath, "returns", "returns.bin",
		"Where to save episodic returns")
	cmd.Flags().StringVar(&plotPath, "plot", "",
		"Save a learning curve image to this path")

	return cmd
}
