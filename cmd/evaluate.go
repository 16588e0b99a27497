package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/Zyzzyva0381/dynamic-diffuser/agent/deepq"
	"github.com/Zyzzyva0381/dynamic-diffuser/environment/diffuser"
	"github.com/Zyzzyva0381/dynamic-diffuser/experiment"
)

// EvaluateCommand returns the command that runs a trained agent
// greedily and reports its returns
func EvaluateCommand() *cobra.Command {
	var (
		episodes    int
		maxSteps    int
		weightsPath string
		plotPath    string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run a trained agent greedily on the panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			envConfig := diffuser.NewConfig()
			envConfig.Frames = frames
			envConfig.MaxEpisodeSteps = maxSteps
			envConfig.Settle = settle
			envConfig.RewardFloor = rewardFloor

			environment, err := openEnvironment(envConfig)
			if err != nil {
				return fmt.Errorf("evaluate: %v", err)
			}
			defer environment.Close()

			a, err := deepq.New(environment, deepq.NewConfig(), 0)
			if err != nil {
				return fmt.Errorf("evaluate: %v", err)
			}
			defer a.Close()
			if err := a.Load(weightsPath); err != nil {
				return fmt.Errorf("evaluate: %v", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			returns, err := experiment.Evaluate(ctx, environment, a,
				episodes)
			if err != nil {
				return fmt.Errorf("evaluate: %v", err)
			}

			mean, std := stat.MeanStdDev(returns, nil)
			fmt.Printf("episodes: %d\n", len(returns))
			fmt.Printf("mean return: %.6g\n", mean)
			fmt.Printf("std return: %.6g\n", std)

			if plotPath != "" {
				if err := experiment.PlotReturns(returns,
					plotPath); err != nil {
					return fmt.Errorf("evaluate: %v", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&episodes, "episodes", "e", 10,
		"Number of evaluation episodes")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 100,
		"Step budget per evaluation episode")
	cmd.Flags().StringVarP(&weightsPath, "weights", "w", "weights.bin",
		"Learned weights to evaluate")
	cmd.Flags().StringVar(&plotPath, "plot", "",
		"Save a return plot to this path")

	return cmd
}
