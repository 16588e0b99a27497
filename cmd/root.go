// Package cmd wires the command line interface of the diffuser
// controller
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zyzzyva0381/dynamic-diffuser/actuator"
	"github.com/Zyzzyva0381/dynamic-diffuser/environment/diffuser"
	"github.com/Zyzzyva0381/dynamic-diffuser/sensor"
)

// Hardware flags shared by every subcommand
var (
	port      string
	baudRate  int
	readyTime time.Duration
	magnets   int

	wavPath    string
	daqPath    string
	channels   int
	sampleRate int
	window     time.Duration

	frames      int
	settle      time.Duration
	rewardFloor float64
)

// GetRootCommand returns the root command with every subcommand
// attached
func GetRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "diffuser",
		Short: "Closed-loop control of an acoustic diffuser panel",
	}

	rootCommand.PersistentFlags().StringVarP(&port, "port", "p",
		"/dev/ttyUSB0", "Serial port of the magnet controller")
	rootCommand.PersistentFlags().IntVar(&baudRate, "baud",
		actuator.DefaultBaudRate, "Baud rate of the magnet controller")
	rootCommand.PersistentFlags().DurationVar(&readyTime, "ready-time",
		2*time.Second, "Wait after opening the port before commanding")
	rootCommand.PersistentFlags().IntVarP(&magnets, "magnets", "m", 9,
		"Number of magnets on the panel")

	rootCommand.PersistentFlags().StringVar(&wavPath, "wav", "",
		"Acquire from a WAV file instead of hardware")
	rootCommand.PersistentFlags().StringVar(&daqPath, "daq", "",
		"Acquire raw float64 samples from this file or FIFO")
	rootCommand.PersistentFlags().IntVarP(&channels, "channels", "c", 3,
		"Number of sensing channels")
	rootCommand.PersistentFlags().IntVar(&sampleRate, "rate", 12000,
		"Acquisition sample rate in Hz")
	rootCommand.PersistentFlags().DurationVar(&window, "window",
		time.Second, "Duration of one acquisition window")

	rootCommand.PersistentFlags().IntVar(&frames, "frames",
		diffuser.DefaultFrames, "Loudness frames per window")
	rootCommand.PersistentFlags().DurationVar(&settle, "settle",
		diffuser.DefaultSettle, "Wait after a magnet command before sensing")
	rootCommand.PersistentFlags().Float64Var(&rewardFloor, "reward-floor",
		diffuser.RewardEpsilon, "Floor on the per-frame loudness spread")

	rootCommand.AddCommand(TrainCommand())
	rootCommand.AddCommand(EvaluateCommand())
	rootCommand.AddCommand(ProbeCommand())
	rootCommand.AddCommand(RecordCommand())
	rootCommand.AddCommand(ToneCommand())
	return rootCommand
}

// openLink connects to the magnet controller
func openLink() (*actuator.Link, error) {
	return actuator.Open(port, baudRate, magnets, readyTime)
}

// openAcquirer builds the configured acquisition source. A WAV path
// takes precedence over a raw sample stream.
func openAcquirer() (sensor.Acquirer, error) {
	switch {
	case wavPath != "":
		return sensor.NewPlayback(wavPath, window)
	case daqPath != "":
		f, err := os.Open(daqPath)
		if err != nil {
			return nil, fmt.Errorf("could not open acquisition stream: %v",
				err)
		}
		return sensor.NewStream(f, channels, sampleRate, window)
	default:
		return nil, fmt.Errorf("no acquisition source: set --wav or --daq")
	}
}

// openEnvironment builds the full control environment from the shared
// hardware flags
func openEnvironment(config diffuser.Config) (*diffuser.Diffuser, error) {
	link, err := openLink()
	if err != nil {
		return nil, err
	}

	daq, err := openAcquirer()
	if err != nil {
		link.Close()
		return nil, err
	}

	environment, err := diffuser.New(link, daq, config)
	if err != nil {
		link.Close()
		daq.Close()
		return nil, err
	}
	return environment, nil
}
