// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package schedconfig captures the scheduler's environment-variable
// tunables (spec §6) into one immutable snapshot taken at the start
// of a scheduling call (spec §9 "Global tunables ... capture into a
// SchedulerConfig struct at call entry"), grounded on
// tenant/manager.DefaultEnv's env-var-table style.
package schedconfig

import (
	"os"
	"strconv"

	"sigs.k8s.io/yaml"
)

// Config is the immutable set of tunables read once per scheduling
// call. Never mutate a Config after FromEnv/Load returns it.
type Config struct {
	// MultiOutput enables grouping multiple buffers into one kernel
	// by reduce_for_op (spec §4.2.5).
	MultiOutput bool `json:"multioutput"`
	// FuseAsOneKernel forces maximal fusion, disabling expand-barrier
	// insertion (spec §4.2.1).
	FuseAsOneKernel bool `json:"fuse_as_one_kernel"`
	// FuseConvBW enables double-reduce fusion (spec §4.2.4).
	FuseConvBW bool `json:"fuse_conv_bw"`
	// SaveSchedule: >0 appends each schedule to SaveSchedulePath as it
	// is created; >1 also exits the process once that many schedules
	// have been appended (spec §6).
	SaveSchedule int `json:"save_schedule"`
	// NoMemoryPlanner disables the memory planner (spec §4.5).
	NoMemoryPlanner bool `json:"no_memory_planner"`
	// UseCopyKernel routes same-family COPY through a generated
	// STORE(LOAD) copy kernel (spec §4.3 step 1).
	UseCopyKernel bool `json:"use_copy_kernel"`
	// Graph and Debug are diagnostic verbosity levels.
	Graph int `json:"graph"`
	Debug int `json:"debug"`
	// LogOps, if non-empty, is a path that each emitted KERNEL AST is
	// appended to (spec §6).
	LogOps string `json:"logops"`
	// SaveSchedulePath is where SAVE_SCHEDULE dumps are written.
	SaveSchedulePath string `json:"save_schedule_path"`
}

func getenvBool(name string) bool {
	v := os.Getenv(name)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// treat "1"/"0"-style non-bool-parseable values as already
		// handled by ParseBool; anything else is falsy, matching the
		// teacher's permissive env-var reading in tenant/manager.go.
		return false
	}
	return b
}

func getenvInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// FromEnv snapshots the process environment into a Config, following
// the env-var table in spec §6.
func FromEnv() Config {
	return Config{
		MultiOutput:      getenvBool("MULTIOUTPUT"),
		FuseAsOneKernel:  getenvBool("FUSE_AS_ONE_KERNEL"),
		FuseConvBW:       getenvBool("FUSE_CONV_BW"),
		SaveSchedule:     getenvInt("SAVE_SCHEDULE"),
		NoMemoryPlanner:  getenvBool("NO_MEMORY_PLANNER"),
		UseCopyKernel:    getenvBool("USE_COPY_KERNEL"),
		Graph:            getenvInt("GRAPH"),
		Debug:            getenvInt("DEBUG"),
		LogOps:           os.Getenv("LOGOPS"),
		SaveSchedulePath: os.Getenv("SAVE_SCHEDULE_PATH"),
	}
}

// Load reads a YAML config file and overlays it on top of FromEnv(),
// letting a host process pin scheduler flags in a file instead of (or
// in addition to) the process environment. Fields absent from the
// file keep their environment-derived value.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
