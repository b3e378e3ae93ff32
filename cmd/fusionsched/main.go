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

// fusionsched is a small diagnostic CLI, in the style of cmd/sdb: it
// reads a JSON-encoded LazyBuffer graph from a file or stdin, runs it
// through the fusion scheduler, and prints the resulting schedule.
//
// The graph format is a convenience for this tool only — there is no
// wire format in the scheduler itself, which only ever consumes
// []*ir.LazyBuffer built directly by a host program.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kernelsched/fusion/schedconfig"
	"github.com/kernelsched/fusion/schedlog"
	"github.com/kernelsched/fusion/scheduler"
)

func main() {
	flag.Usage = usage
	flag.Parse()

	in := os.Stdin
	if path := flag.Arg(0); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			exitf("fusionsched: %s", err)
		}
		defer f.Close()
		in = f
	}

	if err := run(in, os.Stdout); err != nil {
		exitf("fusionsched: %s", err)
	}
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s [graph.json]

Reads a JSON-encoded LazyBuffer graph from the named file, or stdin if
no file is given (or it is "-"), runs the fusion scheduler over it,
and prints the resulting schedule.

By default the schedule is printed as a human-readable describe()
dump. Set SAVE_SCHEDULE=1 to instead write a schedlog-compressed
binary dump to stdout; the rest of schedconfig.FromEnv's tunables
(MULTIOUTPUT, FUSE_AS_ONE_KERNEL, FUSE_CONV_BW, NO_MEMORY_PLANNER,
USE_COPY_KERNEL, GRAPH, DEBUG, LOGOPS) apply as usual.

`, os.Args[0])
	flag.PrintDefaults()
}

func run(in io.Reader, out io.Writer) error {
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading graph: %w", err)
	}

	var doc graphDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decoding graph: %w", err)
	}

	outs, err := doc.build()
	if err != nil {
		return fmt.Errorf("building graph: %w", err)
	}

	cfg := schedconfig.FromEnv()
	// Handle SAVE_SCHEDULE here rather than letting
	// scheduler.CreateScheduleWithVars write its own file, so the CLI
	// can route the binary dump to stdout (or exit 0 early, per
	// cfg.SaveSchedule > 1) the same way it routes the human dump.
	dumpBinary := cfg.SaveSchedule > 0
	exitAfterDump := cfg.SaveSchedule > 1
	cfg.SaveSchedule = 0

	items, vars, err := scheduler.CreateScheduleWithVars(outs, nil, cfg)
	if err != nil {
		return fmt.Errorf("creating schedule: %w", err)
	}

	if dumpBinary {
		w, err := schedlog.NewWriter(out)
		if err != nil {
			return err
		}
		if err := w.Append(items, vars); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		if exitAfterDump {
			os.Exit(0)
		}
		return nil
	}

	describe(out, items, vars)
	return nil
}
