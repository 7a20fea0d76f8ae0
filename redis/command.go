package redis

import "strings"

// Command is a Redis command and its arguments.
type Command struct {
	Name string
	Args []any
}

// Cmd builds a Command.
func Cmd(name string, args ...any) Command {
	return Command{Name: name, Args: args}
}

// String returns the upper-cased command name, which is what logs and spans
// record. Arguments are left out since they may hold values.
func (c Command) String() string {
	return strings.ToUpper(c.Name)
}

func (c Command) args() []any {
	out := make([]any, 0, len(c.Args)+1)
	out = append(out, c.Name)
	return append(out, c.Args...)
}
