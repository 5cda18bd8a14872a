package kernel

import (
	"encoding/json"
	"strings"

	"github.com/itchyny/gojq"
)

// cmdJq implements the guest-reachable "jq" builtin: a query over stat/
// fdstat JSON views (statJSON in binding.go) or arbitrary JSON piped on
// stdin, adapted from the teacher's httputils.go cmdJq (gojq.Parse/Compile/
// Run) to the two-value wire convention instead of writing formatted text
// directly to the process's stdout.
func (r *ProcessRunner) cmdJq(args []string) error {
	if len(args) < 2 {
		return emit(r, "", InvalidArgument)
	}
	filter := args[1]

	var data []byte
	if len(args) >= 3 {
		content, _, err := r.k.vfs.LoadProgram(args[2], r.proc.Cwd)
		if err != nil {
			return emit(r, "", Translate(err))
		}
		data = []byte(content)
	} else {
		in, err := r.k.streams.InputAll(r.proc)
		if err != nil {
			return emit(r, "", Translate(err))
		}
		data = in
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return emit(r, "", InvalidArgument)
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return emit(r, "", InvalidArgument)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return emit(r, "", InvalidArgument)
	}

	var lines []string
	iter := code.Run(parsed)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if verr, ok := v.(error); ok {
			_ = verr
			return emit(r, "", ExternalError)
		}
		out, merr := json.Marshal(v)
		if merr != nil {
			return emit(r, "", InternalError)
		}
		lines = append(lines, string(out))
	}

	return emit(r, strings.Join(lines, "\n"), OK)
}
