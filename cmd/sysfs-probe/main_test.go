package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// setupProbeTree returns sysfs and procfs roots with one CPU and three
// thermal zones, the last with no reading.
func setupProbeTree(t *testing.T) (string, string) {
	t.Helper()

	root := t.TempDir()
	sys := filepath.Join(root, "sys")
	proc := filepath.Join(root, "proc")

	cpu := filepath.Join(sys, "devices/system/cpu/cpu0/cpufreq")
	writeTestFile(t, filepath.Join(cpu, "cpuinfo_min_freq"), "800000\n")
	writeTestFile(t, filepath.Join(cpu, "cpuinfo_max_freq"), "3200000\n")
	writeTestFile(t, filepath.Join(cpu, "scaling_cur_freq"), "2400000\n")
	writeTestFile(t, filepath.Join(cpu, "scaling_governor"), "performance\n")

	zones := filepath.Join(sys, "class/thermal")
	writeTestFile(t, filepath.Join(zones, "thermal_zone0/temp"), "42000\n")
	writeTestFile(t, filepath.Join(zones, "thermal_zone0/type"), "acpitz\n")
	writeTestFile(t, filepath.Join(zones, "thermal_zone0/trip_point_0_type"), "passive\n")
	writeTestFile(t, filepath.Join(zones, "thermal_zone0/trip_point_0_temp"), "60000\n")
	writeTestFile(t, filepath.Join(zones, "thermal_zone0/trip_point_1_type"), "critical\n")
	writeTestFile(t, filepath.Join(zones, "thermal_zone0/trip_point_1_temp"), "98000\n")
	writeTestFile(t, filepath.Join(zones, "thermal_zone1/temp"), "55000\n")
	writeTestFile(t, filepath.Join(zones, "thermal_zone1/type"), "x86_pkg_temp\n")
	writeTestFile(t, filepath.Join(zones, "thermal_zone2/temp"), "-1\n")

	writeTestFile(t, filepath.Join(proc, "stat"),
		"cpu  4705 150 1120 3699176 285 0 12 0 0 0\nctxt 1990473\n")
	return sys, proc
}

func TestProbe_AllZones(t *testing.T) {
	sys, proc := setupProbeTree(t)

	rep, err := probe(probeOptions{SysfsRoot: sys, ProcfsRoot: proc, Zone: -1})
	if err != nil {
		t.Fatalf("probe() error = %v", err)
	}

	if rep.CPUFreq == nil {
		t.Fatal("CPUFreq = nil, want cpu0 info")
	}
	if rep.CPUFreq.Hardware.Min != 800000 || rep.CPUFreq.Hardware.Max != 3200000 {
		t.Fatalf("Hardware = %+v, want 800000..3200000", rep.CPUFreq.Hardware)
	}
	if rep.CPUFreq.Governor != "performance" {
		t.Fatalf("Governor = %q, want performance", rep.CPUFreq.Governor)
	}
	if rep.Accounting.User != 4705 || rep.Accounting.ContextSwitches != 1990473 {
		t.Fatalf("Accounting = %+v", rep.Accounting)
	}
	if !rep.Thermal.Supported {
		t.Fatal("Thermal.Supported = false")
	}
	if h := rep.Thermal.Hottest; h == nil || h.Zone != 1 || h.Temperature != 55000 {
		t.Fatalf("Hottest = %+v, want zone 1 at 55000", h)
	}
	if len(rep.Thermal.Zones) != 3 {
		t.Fatalf("len(Zones) = %d, want 3", len(rep.Thermal.Zones))
	}
	if c := rep.Thermal.Zones[0].Critical; c == nil || *c != 98000 {
		t.Fatalf("zone 0 critical = %v, want 98000", c)
	}
	if rep.Thermal.Zones[1].Critical != nil {
		t.Fatalf("zone 1 critical = %d, want none", *rep.Thermal.Zones[1].Critical)
	}
	if len(rep.Notes) != 0 {
		t.Fatalf("Notes = %q, want none", rep.Notes)
	}
}

func TestProbe_AbsenceIsNotAnError(t *testing.T) {
	sys, proc := setupProbeTree(t)

	rep, err := probe(probeOptions{SysfsRoot: sys, ProcfsRoot: proc, CPU: 3, Zone: 7})
	if err != nil {
		t.Fatalf("probe() error = %v", err)
	}
	if rep.CPUFreq != nil {
		t.Fatalf("CPUFreq = %+v, want nil for a CPU without cpufreq", rep.CPUFreq)
	}
	if rep.Thermal.Hottest != nil || len(rep.Thermal.Zones) != 0 {
		t.Fatalf("Thermal = %+v, want no zone data", rep.Thermal)
	}

	notes := strings.Join(rep.Notes, "\n")
	for _, want := range []string{"cpu3: no cpufreq support", "no thermal information for zone '7'"} {
		if !strings.Contains(notes, want) {
			t.Fatalf("Notes = %q, missing %q", rep.Notes, want)
		}
	}
}

func TestProbe_NoDeviceAndNoThermal(t *testing.T) {
	root := t.TempDir()
	sys := filepath.Join(root, "sys")
	proc := filepath.Join(root, "proc")
	writeTestFile(t, filepath.Join(sys, "devices/system/cpu/cpu0/cpufreq/cpuinfo_max_freq"), "0\n")
	writeTestFile(t, filepath.Join(proc, "stat"), "cpu  1 2 3 4\n")

	rep, err := probe(probeOptions{SysfsRoot: sys, ProcfsRoot: proc, Zone: -1})
	if err != nil {
		t.Fatalf("probe() error = %v", err)
	}
	if rep.Thermal.Supported {
		t.Fatal("Thermal.Supported = true without class/thermal")
	}
	notes := strings.Join(rep.Notes, "\n")
	for _, want := range []string{"cpu0: hardware limits", "cpufreq: no such device", "no thermal support in kernel"} {
		if !strings.Contains(notes, want) {
			t.Fatalf("Notes = %q, missing %q", rep.Notes, want)
		}
	}
}

func TestProbe_MissingStatIsFatal(t *testing.T) {
	sys, _ := setupProbeTree(t)

	_, err := probe(probeOptions{SysfsRoot: sys, ProcfsRoot: t.TempDir(), Zone: -1})
	if err == nil {
		t.Fatal("probe() error = nil, want error for missing stat")
	}
	if !strings.Contains(err.Error(), "stat") {
		t.Fatalf("error = %q, want it to name the stat file", err)
	}
}

func TestRun_Formats(t *testing.T) {
	sys, proc := setupProbeTree(t)
	roots := []string{"--sysfs-root", sys, "--procfs-root", proc}

	t.Run("json", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		if code := run(roots, &stdout, &stderr); code != 0 {
			t.Fatalf("run() = %d, stderr: %s", code, stderr.String())
		}
		var got struct {
			Thermal struct {
				Hottest struct {
					Zone int    `json:"zone"`
					Type string `json:"type"`
				} `json:"hottest"`
			} `json:"thermal"`
		}
		if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
			t.Fatalf("decode json: %v\n%s", err, stdout.String())
		}
		if got.Thermal.Hottest.Zone != 1 || got.Thermal.Hottest.Type != "x86_pkg_temp" {
			t.Fatalf("hottest = %+v, want zone 1 x86_pkg_temp", got.Thermal.Hottest)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		args := append([]string{"--format", "yaml", "--zone", "0"}, roots...)
		if code := run(args, &stdout, &stderr); code != 0 {
			t.Fatalf("run() = %d, stderr: %s", code, stderr.String())
		}
		var got struct {
			Thermal struct {
				Zones []struct {
					Index    int    `yaml:"index"`
					Type     string `yaml:"type"`
					Critical int64  `yaml:"critical_millicelsius"`
				} `yaml:"zones"`
			} `yaml:"thermal"`
		}
		if err := yaml.Unmarshal(stdout.Bytes(), &got); err != nil {
			t.Fatalf("decode yaml: %v\n%s", err, stdout.String())
		}
		if len(got.Thermal.Zones) != 1 {
			t.Fatalf("zones = %+v, want only zone 0", got.Thermal.Zones)
		}
		if z := got.Thermal.Zones[0]; z.Type != "acpitz" || z.Critical != 98000 {
			t.Fatalf("zone 0 = %+v, want acpitz with critical 98000", z)
		}
	})
}

func TestRun_ExitCodes(t *testing.T) {
	sys, proc := setupProbeTree(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"bad format", []string{"--format", "xml"}, 2},
		{"unknown flag", []string{"--bogus"}, 2},
		{"zone below all-zones selector", []string{"--zone=-5"}, 2},
		{"negative cpu", []string{"--cpu=-1"}, 2},
		{"all zones selector accepted", []string{"--zone=-1", "--sysfs-root", sys, "--procfs-root", proc}, 0},
		{"environmental failure", []string{"--sysfs-root", sys, "--procfs-root", t.TempDir()}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(tt.args, &stdout, &stderr); got != tt.want {
				t.Fatalf("run() = %d, want %d (stderr: %s)", got, tt.want, stderr.String())
			}
		})
	}
}
