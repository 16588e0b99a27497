package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/Zyzzyva0381/dynamic-diffuser/sensor"
)

// RecordCommand returns the command that captures one acquisition
// window and writes it to a WAV file for listening checks
func RecordCommand() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture one sensing window to a WAV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			daq, err := openAcquirer()
			if err != nil {
				return fmt.Errorf("record: %v", err)
			}
			defer daq.Close()

			block, err := daq.Acquire()
			if err != nil {
				return fmt.Errorf("record: %v", err)
			}

			if err := sensor.ExportWAV(out, block,
				daq.SampleRate()); err != nil {
				return fmt.Errorf("record: %v", err)
			}

			samples, chans := block.Dims()
			log.Printf("wrote %d samples x %d channels to %v", samples,
				chans, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "capture.wav",
		"Output WAV path")
	return cmd
}
