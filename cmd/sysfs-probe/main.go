// Command sysfs-probe dumps the cpufreq, CPU accounting and thermal state
// of the running system once, as JSON or YAML.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/sysfs"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/thermal"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flagSet := pflag.NewFlagSet("sysfs-probe", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	sysfsRoot := flagSet.String("sysfs-root", sysfs.DefaultSysfsRoot, "sysfs mount point")
	procfsRoot := flagSet.String("procfs-root", sysfs.DefaultProcfsRoot, "procfs mount point")
	cpu := flagSet.Int("cpu", 0, "logical CPU to inspect")
	zone := flagSet.Int("zone", thermal.AllZones, "thermal zone to inspect (-1 for all zones)")
	format := flagSet.StringP("format", "f", "json", "output format: json or yaml")
	verbose := flagSet.BoolP("verbose", "v", false, "log thermal scan details to stderr")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *format != "json" && *format != "yaml" {
		fmt.Fprintf(stderr, "error: unknown format %q\n", *format)
		return 2
	}
	if *zone < thermal.AllZones {
		fmt.Fprintf(stderr, "error: --zone must be a zone index or %d, got %d\n", thermal.AllZones, *zone)
		return 2
	}
	if *cpu < 0 {
		fmt.Fprintf(stderr, "error: --cpu must not be negative, got %d\n", *cpu)
		return 2
	}

	logger := slog.New(slog.DiscardHandler)
	if *verbose {
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	rep, err := probe(probeOptions{
		SysfsRoot:  *sysfsRoot,
		ProcfsRoot: *procfsRoot,
		CPU:        *cpu,
		Zone:       *zone,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if err := writeReport(stdout, rep, *format); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
