package kernel

import (
	"time"

	"github.com/corvus-labs/clusterkit/session"
)

// handleExecuteRequest implements SPEC_FULL §4.2.2.
func handleExecuteRequest(k *Kernel, identities [][]byte, msg *session.Message) (map[string]any, [][]byte, error) {
	code, _ := msg.Content["code"].(string)

	k.broadcast(k.Prefix+".pyin", "pyin", map[string]any{"code": code}, msg)

	started := time.Now().UTC().Format(time.RFC3339Nano)

	err := ExecuteCode(k.UserNS, code)
	if err != nil {
		execErr := toExecutionError(err, k.Ident, k.IntID, "execute")
		k.broadcast(k.Prefix+".pyerr", "pyerr", execErr.ToContent(), msg)

		content := execErr.ToContent()
		content["started"] = started
		k.abortQueues()
		return content, nil, nil
	}

	return map[string]any{"status": "ok", "started": started}, nil, nil
}

// toExecutionError normalizes any error into the structured exception shape,
// stamping in the engine identity fields the handler knows but ExecuteCode
// does not.
func toExecutionError(err error, engineUUID string, engineID int, method string) *ExecutionError {
	if execErr, ok := err.(*ExecutionError); ok {
		execErr.EngineUUID = engineUUID
		execErr.EngineID = engineID
		execErr.Method = method
		return execErr
	}
	return &ExecutionError{
		Ename:      "Error",
		Evalue:     err.Error(),
		EngineUUID: engineUUID,
		EngineID:   engineID,
		Method:     method,
	}
}

// broadcast sends a Message on the iopub stream with ident as its only
// identity frame and the triggering request's header as its parent_header, per SPEC_FULL §4.2.2 step 1 and step 5
// (pyin/pyerr), matching the original stream kernel's parent=parent on these
// sends so a monitor can correlate the broadcast to its request.
func (k *Kernel) broadcast(ident, msgType string, content map[string]any, parent *session.Message) {
	msg := k.Session.Broadcast(msgType, content, parent)
	if err := k.IopubStream.Send([][]byte{[]byte(ident)}, msg, nil); err != nil {
		k.Logger.Error("iopub broadcast failed", "msg_type", msgType, "error", err)
	}
}
