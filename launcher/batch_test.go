package launcher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func TestBatchSystemLauncherRenderInjectsQueueThenJobArray(t *testing.T) {
	spec := BatchTemplateSpec{
		DefaultTemplate:  "#!/bin/sh\necho {profile_dir}\n",
		JobArrayRegexp:   pbsJobArrayRegexp,
		JobArrayTemplate: "#PBS -t 1-{n}",
		QueueRegexp:      pbsQueueRegexp,
		QueueTemplate:    "#PBS -q {queue}",
	}
	ctx := BatchContext{"profile_dir": "/p", "queue": "short", "n": "4"}

	rendered, err := spec.render(ctx)
	assert.NilError(t, err)

	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	assert.Equal(t, lines[0], "#!/bin/sh")
	assert.Equal(t, lines[1], "#PBS -q short")
	assert.Equal(t, lines[2], "#PBS -t 1-4")
	assert.Equal(t, lines[3], "echo /p")
}

func TestBatchSystemLauncherRenderIdempotentWhenAlreadyPresent(t *testing.T) {
	spec := BatchTemplateSpec{
		DefaultTemplate:  "#!/bin/sh\n#PBS -t 1-8\n#PBS -q long\necho go\n",
		JobArrayRegexp:   pbsJobArrayRegexp,
		JobArrayTemplate: "#PBS -t 1-{n}",
		QueueRegexp:      pbsQueueRegexp,
		QueueTemplate:    "#PBS -q {queue}",
	}
	ctx := BatchContext{"queue": "short", "n": "4"}

	first, err := spec.render(ctx)
	assert.NilError(t, err)
	second, err := spec.render(ctx)
	assert.NilError(t, err)

	assert.Equal(t, first, second)
	// The regexes already match, so no injection happens; the pre-existing
	// directives are left untouched rather than duplicated or substituted.
	assert.Equal(t, strings.Count(first, "#PBS -t"), 1)
	assert.Equal(t, strings.Count(first, "#PBS -q"), 1)
}

func TestBatchSystemLauncherWriteScriptMode(t *testing.T) {
	dir := t.TempDir()
	spec := BatchTemplateSpec{
		DefaultTemplate:  "#!/bin/sh\necho {profile_dir}\n",
		JobArrayRegexp:   pbsJobArrayRegexp,
		JobArrayTemplate: "#PBS -t 1-{n}",
		QueueRegexp:      pbsQueueRegexp,
		QueueTemplate:    "#PBS -q {queue}",
	}
	ctx := BatchContext{"profile_dir": dir, "queue": "short", "n": "2"}
	b := NewBatchSystemLauncher("b1", dir, spec, "pbs_script.sh", []string{"qsub"}, []string{"qdel"}, pbsJobIDRegexp, ctx, NewLoop(), nil)

	_, err := b.writeScript()
	assert.NilError(t, err)

	info, err := os.Stat(filepath.Join(dir, "pbs_script.sh"))
	assert.NilError(t, err)
	assert.Equal(t, info.Mode().Perm(), os.FileMode(0o700))
}
