package kernel

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

func TestSplitStatementsStripsCommentsAndBlankLines(t *testing.T) {
	stmts := splitStatements("x = 1\n# a comment\n\ny = x + 1\n")
	assert.DeepEqual(t, stmts, []string{"x = 1", "y = x + 1"})
}

func TestSplitAssignmentPlainAssignment(t *testing.T) {
	name, rhs, ok := splitAssignment("x = 1 + 2")
	assert.Assert(t, ok)
	assert.Equal(t, name, "x")
	assert.Equal(t, rhs, "1 + 2")
}

func TestSplitAssignmentDoesNotTreatComparisonsAsAssignment(t *testing.T) {
	cases := []string{"x == 1", "x != 1", "x <= 1", "x >= 1"}
	for _, c := range cases {
		_, rhs, ok := splitAssignment(c)
		assert.Assert(t, !ok, c)
		assert.Equal(t, rhs, c)
	}
}

func TestSplitAssignmentBareExpressionIsNotAnAssignment(t *testing.T) {
	_, rhs, ok := splitAssignment("1 + 2")
	assert.Assert(t, !ok)
	assert.Equal(t, rhs, "1 + 2")
}

func TestSplitAssignmentRejectsInvalidIdentifierOnLeft(t *testing.T) {
	// "a.b" is not a valid bare identifier, so this is left as a bare
	// expression rather than misparsed as an assignment to "a.b".
	_, _, ok := splitAssignment("a.b = 1")
	assert.Assert(t, !ok)
}

func TestIsValidIdentifier(t *testing.T) {
	assert.Assert(t, isValidIdentifier("x"))
	assert.Assert(t, isValidIdentifier("_x1"))
	assert.Assert(t, !isValidIdentifier(""))
	assert.Assert(t, !isValidIdentifier("1x"))
	assert.Assert(t, !isValidIdentifier("a.b"))
}

func TestExecuteCodeLaterStatementsSeeEarlierAssignments(t *testing.T) {
	ns := NewNamespace()
	err := ExecuteCode(ns, "x = 1\ny = x + 1\n")
	assert.NilError(t, err)

	x, ok := ns.Get("x")
	assert.Assert(t, ok)
	assert.Equal(t, x, 1)
	y, ok := ns.Get("y")
	assert.Assert(t, ok)
	assert.Equal(t, y, 2)
}

func TestExecuteCodeCompileErrorReturnsExecutionError(t *testing.T) {
	ns := NewNamespace()
	err := ExecuteCode(ns, "x ==")

	var execErr *ExecutionError
	assert.Assert(t, errors.As(err, &execErr))
	assert.Equal(t, execErr.Ename, "CompileError")
}
