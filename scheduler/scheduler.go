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

// Package scheduler drives the kernel fusion scheduler end to end: a
// lazy-buffer DAG goes in, a topologically-ordered []*ir.ScheduleItem
// with its memory plan already applied comes out. It composes
// sched.Realize, lower.Lower, sched.Emit and memplan.Plan in the
// pipeline spec.md §1 describes, and is the only package that needs to
// import all four.
package scheduler

import (
	"fmt"
	"os"

	"github.com/kernelsched/fusion/ir"
	"github.com/kernelsched/fusion/lower"
	"github.com/kernelsched/fusion/memplan"
	"github.com/kernelsched/fusion/sched"
	"github.com/kernelsched/fusion/schedconfig"
	"github.com/kernelsched/fusion/schedlog"
	"github.com/kernelsched/fusion/st"
)

// CreateSchedule runs the full pipeline with tunables read from the
// process environment (spec §6) and discards the final variable
// bindings. outs are the requested output LazyBuffers; seen marks ids
// the caller already realized in a prior call (spec §4.2.1 "seen"),
// and may be nil.
func CreateSchedule(outs []*ir.LazyBuffer, seen map[int]bool) ([]*ir.ScheduleItem, error) {
	items, _, err := CreateScheduleWithVars(outs, seen, schedconfig.FromEnv())
	return items, err
}

// CreateScheduleWithVars runs the full pipeline with an explicit
// Config and returns the merged variable bindings (spec §4.4) a
// runtime needs to resolve symbolic buffer sizes, alongside the
// schedule.
func CreateScheduleWithVars(outs []*ir.LazyBuffer, seen map[int]bool, cfg schedconfig.Config) ([]*ir.ScheduleItem, st.VarVals, error) {
	if seen == nil {
		seen = map[int]bool{}
	}

	res := sched.Realize(outs, seen, cfg)

	groups := make([]*sched.LoweredGroup, 0, len(res.OutputGroups))
	for _, group := range res.OutputGroups {
		lg, err := lower.Lower(group, res, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("scheduler: lowering group: %w", err)
		}
		groups = append(groups, bridgeLoweredGroup(lg))
	}

	items, varVals, err := sched.Emit(groups, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("scheduler: emitting schedule: %w", err)
	}

	if !cfg.NoMemoryPlanner {
		memplan.Plan(items)
	}

	if cfg.LogOps != "" {
		f, err := os.OpenFile(cfg.LogOps, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("scheduler: LOGOPS: %w", err)
		}
		for _, item := range items {
			if item.AST.Op == ir.Kernel {
				fmt.Fprintln(f, item.AST)
			}
		}
		f.Close()
	}

	if cfg.SaveSchedule > 0 {
		if err := appendSaveSchedule(cfg, items, varVals); err != nil {
			return nil, nil, fmt.Errorf("scheduler: SAVE_SCHEDULE: %w", err)
		}
	}

	return items, varVals, nil
}

// bridgeLoweredGroup copies a lower.LoweredGroup's fields into
// sched.LoweredGroup. The two types are declared separately rather
// than shared because package lower imports package sched (for
// sched.Result), so sched cannot import lower's type back; this
// package, sitting above both, is where the two meet.
func bridgeLoweredGroup(lg *lower.LoweredGroup) *sched.LoweredGroup {
	return &sched.LoweredGroup{
		Outputs:  lg.Outputs,
		Inputs:   lg.Inputs,
		AST:      lg.AST,
		VarVals:  lg.VarVals,
		Metadata: lg.Metadata,
	}
}

// savedSchedules counts the schedules appendSaveSchedule has written
// in this process.
var savedSchedules int

// appendSaveSchedule implements the SAVE_SCHEDULE side of spec §6: the
// (schedule, var bindings) pair is appended to cfg.SaveSchedulePath. A
// SaveSchedule value greater than 1 additionally terminates the process
// once that many schedules have been written, matching the
// teacher-idiom "debug dump then exit" tools use for capture.
func appendSaveSchedule(cfg schedconfig.Config, items []*ir.ScheduleItem, vars st.VarVals) error {
	path := cfg.SaveSchedulePath
	if path == "" {
		path = "schedule.log"
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := schedlog.NewWriter(f)
	if err != nil {
		return err
	}
	if err := w.Append(items, vars); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	savedSchedules++
	if cfg.SaveSchedule > 1 && savedSchedules >= cfg.SaveSchedule {
		os.Exit(0)
	}
	return nil
}
