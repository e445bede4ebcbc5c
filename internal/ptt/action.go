// Package ptt implements push-to-talk control of paired nodes: the closed
// action set, the node.invoke dispatch shared by every front end, and the
// rendering of invocation results.
package ptt

import "strings"

// Action is one of the fixed push-to-talk actions. The set is closed:
// values outside the declared constants are never produced by this package.
type Action int

// Push-to-talk actions, in the order they are presented to users.
const (
	ActionStart Action = iota
	ActionStop
	ActionOnce
	ActionCancel
)

type actionDef struct {
	name        string
	command     string
	description string
}

var actionTable = [...]actionDef{
	ActionStart:  {name: "start", command: "talk.ptt.start", description: "Start push-to-talk capture"},
	ActionStop:   {name: "stop", command: "talk.ptt.stop", description: "Stop push-to-talk capture"},
	ActionOnce:   {name: "once", command: "talk.ptt.once", description: "Run push-to-talk once"},
	ActionCancel: {name: "cancel", command: "talk.ptt.cancel", description: "Cancel push-to-talk capture"},
}

// Actions returns every action in declaration order.
func Actions() []Action {
	return []Action{ActionStart, ActionStop, ActionOnce, ActionCancel}
}

// Name returns the short action name ("start", "stop", ...).
func (a Action) Name() string { return actionTable[a].name }

// RemoteCommand returns the node command invoked for the action.
func (a Action) RemoteCommand() string { return actionTable[a].command }

// Description returns the help text for the action.
func (a Action) Description() string { return actionTable[a].description }

func (a Action) String() string { return a.Name() }

// ParseAction looks up an action by name, ignoring case and surrounding
// whitespace. It is meant for free-text input such as chat commands.
func ParseAction(name string) (Action, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, a := range Actions() {
		if a.Name() == name {
			return a, true
		}
	}
	return 0, false
}

// ActionNames returns the action names in declaration order.
func ActionNames() []string {
	all := Actions()
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.Name()
	}
	return names
}
