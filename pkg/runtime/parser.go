package runtime

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/modelctl/mcprun/pkg/errors"
	"github.com/modelctl/mcprun/pkg/types"
)

// Invocation is the parsed form of a textual command string.
type Invocation struct {
	Module  string
	Command string
	Params  types.Params
}

// ParseCommandString parses the line-oriented invocation grammar
// "moduleName.commandName key1=value1 key2=value2 ...". Values are
// speculatively parsed as JSON so numbers, booleans and nested objects
// can be passed on a single line, degrading gracefully to raw strings.
func ParseCommandString(input string) (*Invocation, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil, errors.NewParseError("empty command string")
	}

	head := fields[0]
	idx := strings.Index(head, ".")
	if idx < 0 {
		return nil, errors.NewParseError(
			fmt.Sprintf("invalid command %q: want \"module.command\"", head))
	}
	moduleName, commandName := head[:idx], head[idx+1:]
	if moduleName == "" {
		return nil, errors.NewParseError(
			fmt.Sprintf("invalid command %q: missing module name", head))
	}
	if commandName == "" {
		return nil, errors.NewParseError(
			fmt.Sprintf("invalid command %q: missing command name", head))
	}

	params := make(types.Params, len(fields)-1)
	for _, tok := range fields[1:] {
		eq := strings.Index(tok, "=")
		if eq <= 0 {
			return nil, errors.NewParseError(
				fmt.Sprintf("invalid parameter %q: want \"key=value\"", tok))
		}
		params[tok[:eq]] = parseValue(tok[eq+1:])
	}

	return &Invocation{Module: moduleName, Command: commandName, Params: params}, nil
}

// parseValue tries raw as a JSON value, keeping the raw string otherwise
func parseValue(raw string) interface{} {
	if gjson.Valid(raw) {
		return gjson.Parse(raw).Value()
	}
	return raw
}
