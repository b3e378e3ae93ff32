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

package ir

import "errors"

// Sentinel errors for the scheduler's fatal error taxonomy (spec §7).
// Every raise site wraps one of these with fmt.Errorf("%w: ...") so
// callers can errors.Is against a stable value, following
// plan.ErrNotSupported/reject() in the teacher's plan package.
var (
	// ErrBadAssign is raised when an augmented-assign's self-operand
	// is not contiguous (and not mask-contiguous).
	ErrBadAssign = errors.New("ir: augmented-assign self-operand is not contiguous")

	// ErrBadConst is raised when a CONST LazyBuffer's arg is neither
	// a scalar of a recognized dtype nor a Variable.
	ErrBadConst = errors.New("ir: CONST argument is not a recognized scalar or Variable")

	// ErrAssignTargetUnrealized is raised when an ASSIGN's target
	// LazyBuffer is not already realized.
	ErrAssignTargetUnrealized = errors.New("ir: ASSIGN target is not realized")
)
