package kernel

import (
	"github.com/corvus-labs/clusterkit/session"
)

// handleCompleteRequest implements SPEC_FULL §4.2.4.
func handleCompleteRequest(k *Kernel, identities [][]byte, msg *session.Message) (map[string]any, [][]byte, error) {
	line, _ := msg.Content["line"].(string)
	text, _ := msg.Content["text"].(string)

	matches := k.Completer.Complete(line, text)
	return map[string]any{"matches": matches, "status": "ok"}, nil, nil
}

// handleClearRequest implements SPEC_FULL §4.2.5: replace user_ns with an
// empty mapping, then re-run the configured startup lines against the fresh
// namespace.
func handleClearRequest(k *Kernel, identities [][]byte, msg *session.Message) (map[string]any, [][]byte, error) {
	k.UserNS.Reset()
	for _, line := range k.ExecLines {
		if err := ExecuteCode(k.UserNS, line); err != nil {
			k.Logger.Error("clear_request: exec_lines replay failed", "error", err)
		}
	}
	return map[string]any{"status": "ok"}, nil, nil
}

// handleShutdownRequest implements SPEC_FULL §4.2.6. abort_queues here is a
// non-blocking drain with no failure mode of its own (SPEC_FULL §9: do not
// interrupt in-flight handlers), so the "on its failure" branch of the
// source never triggers in this port; status is always ok once the drain
// returns.
func handleShutdownRequest(k *Kernel, identities [][]byte, msg *session.Message) (map[string]any, [][]byte, error) {
	k.abortQueues()

	content := map[string]any{"status": "ok"}
	for key, val := range msg.Content {
		content[key] = val
	}
	content["status"] = "ok"

	if k.OnShutdown != nil {
		k.Loop.RunAfter(shutdownGrace, k.OnShutdown)
	}

	return content, nil, nil
}

// handleAbortRequest implements SPEC_FULL §4.2.7.
func handleAbortRequest(k *Kernel, identities [][]byte, msg *session.Message) (map[string]any, [][]byte, error) {
	rawIDs, _ := msg.Content["msg_ids"].([]any)
	if len(rawIDs) == 0 {
		k.abortQueues()
		return map[string]any{"status": "ok"}, nil, nil
	}
	for _, raw := range rawIDs {
		if id, ok := raw.(string); ok {
			k.Aborted.Add(id)
		}
	}
	return map[string]any{"status": "ok"}, nil, nil
}
