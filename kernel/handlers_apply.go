package kernel

import (
	"fmt"
	"strings"
	"time"

	"github.com/corvus-labs/clusterkit/session"
)

// ApplyPayload is the decoded shape of an apply_request's first buffer: the
// name of a registered callable plus its positional and keyword arguments.
// SPEC_FULL §4.2.3 step 3 describes deserializing "(f, args, kwargs)" from
// the buffers; here f is a name rather than a function body.
type ApplyPayload struct {
	FuncName string         `msgpack:"func_name"`
	Args     []any          `msgpack:"args"`
	Kwargs   map[string]any `msgpack:"kwargs"`
}

// handleApplyRequest implements SPEC_FULL §4.2.3.
func handleApplyRequest(k *Kernel, identities [][]byte, msg *session.Message) (map[string]any, [][]byte, error) {
	started := time.Now().UTC().Format(time.RFC3339Nano)

	if len(msg.Buffers) == 0 {
		return applyErrorContent(k, "ValueError", "apply_request carried no buffers", started), nil, nil
	}

	var payload ApplyPayload
	codec := MsgpackApplyCodec{}
	if err := codec.Decode(msg.Buffers[0], &payload); err != nil {
		return applyErrorContent(k, "DecodeError", err.Error(), started), nil, nil
	}

	if deps, ok := msg.Content["dependencies"]; ok {
		if !CheckDependencies(deps, k.DependencyStore) {
			return applyUnmetDependencyContent(k, started), nil, nil
		}
	}

	// Mint a fresh unique prefix per SPEC_FULL §4.2.3 step 2, and
	// temporarily bind the four synthetic names in user_ns so code running
	// in the same namespace mid-call can observe them, even though the
	// invocation below is a direct reflect call and does not itself consult
	// these bindings.
	prefix := "_" + strings.ReplaceAll(msg.Header.MsgID, "-", "") + "_"
	fName, argsName, kwargsName, resultName := prefix+"f", prefix+"args", prefix+"kwargs", prefix+"result"

	k.UserNS.Set(fName, payload.FuncName)
	k.UserNS.Set(argsName, payload.Args)
	k.UserNS.Set(kwargsName, payload.Kwargs)
	defer func() {
		k.UserNS.Delete(fName)
		k.UserNS.Delete(argsName)
		k.UserNS.Delete(kwargsName)
		k.UserNS.Delete(resultName)
	}()

	result, err := k.Callables.Invoke(payload.FuncName, payload.Args, payload.Kwargs)
	if err != nil {
		execErr := toExecutionError(err, k.Ident, k.IntID, "apply_request")
		k.broadcast(k.Prefix+".pyerr", "pyerr", execErr.ToContent(), msg)
		content := applyErrorContent(k, execErr.Ename, execErr.Evalue, started)
		return content, nil, nil
	}
	k.UserNS.Set(resultName, result)

	// Step 5: serialize the result and assemble reply buffers as
	// [header_bytes, ...extra]. There are no extra buffers for a plain
	// value result, so the reply carries exactly one.
	resultBytes, err := codec.Encode(result)
	if err != nil {
		return applyErrorContent(k, "EncodeError", err.Error(), started), nil, nil
	}

	return map[string]any{
		"status":           "ok",
		"dependencies_met": true,
		"engine":           k.Ident,
		"started":          started,
	}, [][]byte{resultBytes}, nil
}

// applyErrorContent builds the error content for an apply_request failure.
// dependencies_met is false only when the raised error is itself
// UnmetDependency (SPEC_FULL §4.2.3 step 6 / §7); any other failure,
// including the buffer and decode failures raised before the dependency
// check runs, leaves dependencies_met true.
func applyErrorContent(k *Kernel, ename, evalue, started string) map[string]any {
	return map[string]any{
		"status":           "error",
		"ename":            ename,
		"evalue":           evalue,
		"dependencies_met": ename != EnameUnmetDependency,
		"engine":           k.Ident,
		"started":          started,
	}
}

func applyUnmetDependencyContent(k *Kernel, started string) map[string]any {
	return map[string]any{
		"status":           "error",
		"ename":            EnameUnmetDependency,
		"evalue":           fmt.Sprintf("dependencies not met for engine %s", k.Ident),
		"dependencies_met": false,
		"engine":           k.Ident,
		"started":          started,
	}
}
