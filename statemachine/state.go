// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package statemachine tracks the IEEE 1149.1 TAP controller's 16-state
// graph on top of a cable.Cable and computes minimum-length TMS paths
// between states, so a caller asks for a state by name instead of hand
// assembling TMS sequences.
package statemachine

import "fmt"

// State is one of the 16 IEEE 1149.1 TAP controller states.
type State uint8

const (
	Reset State = iota
	Idle
	SelectDR
	CaptureDR
	ShiftDR
	Exit1DR
	PauseDR
	Exit2DR
	UpdateDR
	SelectIR
	CaptureIR
	ShiftIR
	Exit1IR
	PauseIR
	Exit2IR
	UpdateIR
)

var stateNames = map[State]string{
	Reset:     "Reset",
	Idle:      "Idle",
	SelectDR:  "SelectDR",
	CaptureDR: "CaptureDR",
	ShiftDR:   "ShiftDR",
	Exit1DR:   "Exit1DR",
	PauseDR:   "PauseDR",
	Exit2DR:   "Exit2DR",
	UpdateDR:  "UpdateDR",
	SelectIR:  "SelectIR",
	CaptureIR: "CaptureIR",
	ShiftIR:   "ShiftIR",
	Exit1IR:   "Exit1IR",
	PauseIR:   "PauseIR",
	Exit2IR:   "Exit2IR",
	UpdateIR:  "UpdateIR",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", s)
}

type edges struct {
	onZero, onOne State
}

var transitions = map[State]edges{
	Reset:     {onZero: Idle, onOne: Reset},
	Idle:      {onZero: Idle, onOne: SelectDR},
	SelectDR:  {onZero: CaptureDR, onOne: SelectIR},
	CaptureDR: {onZero: ShiftDR, onOne: Exit1DR},
	ShiftDR:   {onZero: ShiftDR, onOne: Exit1DR},
	Exit1DR:   {onZero: PauseDR, onOne: UpdateDR},
	PauseDR:   {onZero: PauseDR, onOne: Exit2DR},
	Exit2DR:   {onZero: ShiftDR, onOne: UpdateDR},
	UpdateDR:  {onZero: Idle, onOne: SelectDR},
	SelectIR:  {onZero: CaptureIR, onOne: Reset},
	CaptureIR: {onZero: ShiftIR, onOne: Exit1IR},
	ShiftIR:   {onZero: ShiftIR, onOne: Exit1IR},
	Exit1IR:   {onZero: PauseIR, onOne: UpdateIR},
	PauseIR:   {onZero: PauseIR, onOne: Exit2IR},
	Exit2IR:   {onZero: ShiftIR, onOne: UpdateIR},
	UpdateIR:  {onZero: Idle, onOne: SelectIR},
}

// NextState returns the state reached from current after one TCK cycle
// with the given TMS bit.
func NextState(current State, tms bool) State {
	row, ok := transitions[current]
	if !ok {
		panic(fmt.Sprintf("statemachine: unhandled state %d", current))
	}
	if tms {
		return row.onOne
	}
	return row.onZero
}

// path computes the shortest TMS sequence from "from" to "to" by BFS over
// the 16-node graph. At every node the TMS=0 edge is enqueued before the
// TMS=1 edge, so among paths of equal length the one with more zeros is
// returned first; this only affects which of several equally-short TMS
// patterns comes out, never correctness, per the graph's own guarantee
// that every state reaches every other within 7 transitions.
func path(from, to State) []bool {
	if from == to {
		return nil
	}

	type node struct {
		state State
		tms   []bool
	}

	queue := []node{{state: from}}
	visited := map[State]bool{from: true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, bit := range [...]bool{false, true} {
			next := NextState(cur.state, bit)
			if visited[next] {
				continue
			}
			tms := make([]bool, len(cur.tms)+1)
			copy(tms, cur.tms)
			tms[len(cur.tms)] = bit

			if next == to {
				return tms
			}
			visited[next] = true
			queue = append(queue, node{state: next, tms: tms})
		}
	}

	panic(fmt.Sprintf("statemachine: no path from %s to %s", from, to))
}
