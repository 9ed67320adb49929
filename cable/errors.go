// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cable

import "fmt"

// Misuse reports a precondition violation: an invalid argument to a Cable
// or higher-layer operation. It is never returned for a physical adapter
// failure (timeout, short read, device gone) — those are plain errors
// wrapping the transport's own error, propagated outward unchanged.
//
// Packages in this module report misuse by panicking with a *Misuse; this
// API is single-caller and in-process, so an assertion-style abort is the
// right failure mode for a caller bug rather than an error return the
// caller is expected to handle and continue past.
type Misuse struct {
	Component string
	Msg       string
}

func (m *Misuse) Error() string {
	return fmt.Sprintf("%s: %s", m.Component, m.Msg)
}

// Assertf panics with a *Misuse if cond is false. component should be the
// short package name reporting the violation ("cable", "statemachine",
// "chain").
func Assertf(cond bool, component, format string, args ...any) {
	if !cond {
		panic(&Misuse{Component: component, Msg: fmt.Sprintf(format, args...)})
	}
}
