package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zyzzyva0381/dynamic-diffuser/actuator"
)

// ProbeCommand returns the command that drives individual magnets
// interactively, for bench-testing the panel wiring
func ProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Drive magnets interactively over the serial link",
		Long: `Drive magnets interactively over the serial link.

Commands are read from standard input, one per line:

	<id> in|out   drive one magnet, ids start at 0
	all in|out    drive every magnet
	cycle         extend then retract each magnet in turn
	quit          exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := openLink()
			if err != nil {
				return fmt.Errorf("probe: %v", err)
			}
			defer link.Close()

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Printf("connected to %v (%d magnets)\n", port, magnets)
			fmt.Print("> ")
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "quit" || line == "exit" {
					break
				}
				if line != "" {
					if err := probeCommand(link, line); err != nil {
						fmt.Printf("error: %v\n", err)
					}
				}
				fmt.Print("> ")
			}
			return scanner.Err()
		},
	}
}

// probeCommand parses and executes a single probe line
func probeCommand(link *actuator.Link, line string) error {
	if line == "cycle" {
		return cycleMagnets(link)
	}

	fields := strings.Fields(line)
	if len(fields) != 2 {
		return fmt.Errorf("want \"<id> in|out\", \"all in|out\", or "+
			"\"cycle\", got %q", line)
	}

	var direction actuator.Direction
	switch fields[1] {
	case "in":
		direction = actuator.Retract
	case "out":
		direction = actuator.Extend
	default:
		return fmt.Errorf("unknown direction %q, want \"in\" or \"out\"",
			fields[1])
	}

	if fields[0] == "all" {
		for id := 0; id < link.Magnets(); id++ {
			if err := link.Command(id, direction); err != nil {
				return err
			}
		}
		return nil
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("unknown magnet %q", fields[0])
	}
	return link.Command(id, direction)
}

// cycleMagnets extends then retracts each magnet in turn, with the
// configured settle delay between moves, so a bench operator can watch
// every position work
func cycleMagnets(link *actuator.Link) error {
	for id := 0; id < link.Magnets(); id++ {
		fmt.Printf("magnet %d\n", id)
		if err := link.Command(id, actuator.Extend); err != nil {
			return err
		}
		time.Sleep(settle)
		if err := link.Command(id, actuator.Retract); err != nil {
			return err
		}
		time.Sleep(settle)
	}
	return nil
}
