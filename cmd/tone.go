package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zyzzyva0381/dynamic-diffuser/sensor"
)

// ToneCommand returns the command that writes a sine sweep excitation
// file for driving the room loudspeaker
func ToneCommand() *cobra.Command {
	var (
		out       string
		frequency float64
		duration  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Write a sine excitation WAV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sensor.WriteSine(out, frequency, duration,
				sampleRate); err != nil {
				return fmt.Errorf("tone: %v", err)
			}
			log.Printf("wrote %.4g Hz tone of %v to %v", frequency,
				duration, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "tone.wav",
		"Output WAV path")
	cmd.Flags().Float64VarP(&frequency, "freq", "f", 440,
		"Tone frequency in Hz")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 10*time.Second,
		"Tone duration")
	return cmd
}
