package kernel

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// ExecutionError is the structured exception a failed execute_request or
// apply_request produces, per SPEC_FULL §7: {ename, evalue, traceback,
// engine_uuid, engine_id, method}. EngineUUID/EngineID/Method are filled in
// by the caller (the handler knows which engine and which request this is);
// Ename/Evalue/Traceback are filled in here at the point of failure.
type ExecutionError struct {
	Ename      string
	Evalue     string
	Traceback  []string
	EngineUUID string
	EngineID   int
	Method     string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Ename, e.Evalue)
}

// ToContent renders the structured exception as the map used for pyerr
// broadcasts and error reply content.
func (e *ExecutionError) ToContent() map[string]any {
	return map[string]any{
		"status":      "error",
		"ename":       e.Ename,
		"evalue":      e.Evalue,
		"traceback":   e.Traceback,
		"engine_uuid": e.EngineUUID,
		"engine_id":   e.EngineID,
		"method":      e.Method,
	}
}

// EnameUnmetDependency is the distinguished ename that, when raised during
// apply_request, sets the reply subheader's dependencies_met to false so
// the scheduler can reroute the task, per SPEC_FULL §7.
const EnameUnmetDependency = "UnmetDependency"

// ExecuteCode compiles and runs code against ns, per SPEC_FULL §4.2.2's
// "compile the code... execute the compiled code with user_ns as both
// globals and locals". The target language has no eval, so code is modeled
// as a newline-separated sequence of statements, each either a plain
// expression or a `name = expression` assignment; each expression is
// compiled and run by github.com/expr-lang/expr against a snapshot of the
// namespace, and assignments are written back into ns immediately so later
// statements in the same call observe earlier ones, matching the
// locals-equal-globals execution model without requiring a real
// interpreter for a full general-purpose language.
func ExecuteCode(ns *Namespace, code string) error {
	for _, stmt := range splitStatements(code) {
		if stmt == "" {
			continue
		}
		name, rhs, isAssignment := splitAssignment(stmt)

		env := ns.Snapshot()
		program, err := expr.Compile(rhs, expr.Env(env))
		if err != nil {
			return &ExecutionError{
				Ename:     "CompileError",
				Evalue:    err.Error(),
				Traceback: []string{stmt},
			}
		}
		result, err := expr.Run(program, env)
		if err != nil {
			return &ExecutionError{
				Ename:     "RuntimeError",
				Evalue:    err.Error(),
				Traceback: []string{stmt},
			}
		}
		if isAssignment {
			ns.Set(name, result)
		}
	}
	return nil
}

// splitStatements breaks code into newline-separated, comment-stripped,
// non-empty statements.
func splitStatements(code string) []string {
	lines := strings.Split(code, "\n")
	stmts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stmts = append(stmts, line)
	}
	return stmts
}

// splitAssignment reports whether stmt is a `name = expression` assignment
// (as opposed to a bare expression or a comparison like `a == b`), returning
// the target name and the right-hand-side expression source.
func splitAssignment(stmt string) (name, rhs string, ok bool) {
	for i := 0; i < len(stmt); i++ {
		if stmt[i] != '=' {
			continue
		}
		prevIsCompare := i > 0 && (stmt[i-1] == '=' || stmt[i-1] == '!' || stmt[i-1] == '<' || stmt[i-1] == '>')
		nextIsCompare := i+1 < len(stmt) && stmt[i+1] == '='
		if prevIsCompare || nextIsCompare {
			continue
		}
		left := strings.TrimSpace(stmt[:i])
		if !isValidIdentifier(left) {
			continue
		}
		return left, strings.TrimSpace(stmt[i+1:]), true
	}
	return "", stmt, false
}

func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if !isLetter && !isDigit {
			return false
		}
	}
	return true
}
