package experiment

import (
	"context"
	"fmt"

	"github.com/Zyzzyva0381/dynamic-diffuser/agent"
	env "github.com/Zyzzyva0381/dynamic-diffuser/environment"
)

// Evaluate runs the agent greedily for the given number of episodes
// and returns each episode's return. No learning happens during
// evaluation. The environment is left open so that callers can keep
// using it.
func Evaluate(ctx context.Context, e env.Environment, a agent.Policy,
	episodes int) ([]float64, error) {
	if episodes < 1 {
		return nil, fmt.Errorf("evaluate: episodes must be positive, got %d",
			episodes)
	}

	a.Eval()
	defer a.Train()

	returns := make([]float64, 0, episodes)
	for episode := 0; episode < episodes; episode++ {
		step, err := e.Reset()
		if err != nil {
			return returns, fmt.Errorf("evaluate: could not reset "+
				"environment: %v", err)
		}

		episodeReturn := 0.0
		last := false
		for !last {
			action := a.SelectAction(step)
			step, last, err = e.Step(action)
			if err != nil {
				return returns, fmt.Errorf("evaluate: could not step "+
					"environment: %v", err)
			}
			episodeReturn += step.Reward

			select {
			case <-ctx.Done():
				return returns, ctx.Err()
			default:
			}
		}
		returns = append(returns, episodeReturn)
	}

	return returns, nil
}
