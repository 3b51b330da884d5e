package launcher

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// BatchContext is the name->value mapping used to render a batch script,
// per SPEC_FULL §3. Mandatory keys are n, profile_dir, and queue; additional
// keys are permitted and substituted the same way.
type BatchContext map[string]string

// NContext, a small convenience constructor matching the mandatory-key
// shape described in §3, is intentionally not provided: callers build a
// BatchContext directly since the mandatory/optional key distinction is
// documentation, not a type-level constraint the source enforces either.

// renderTemplate substitutes every `{name}` placeholder in tmpl with the
// corresponding BatchContext value. Unknown placeholders are left as-is
// (matching a templating system forgiving of extra-context-free templates);
// this is deliberately plain string substitution rather than text/template,
// since text/template's `{{.Field}}` delimiter syntax cannot represent the
// wire format's literal single-brace `{name}` placeholders without
// rewriting every template string the caller supplies.
func renderTemplate(tmpl string, ctx BatchContext) string {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		open := strings.IndexByte(tmpl[i:], '{')
		if open < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		open += i
		b.WriteString(tmpl[i:open])
		closeIdx := strings.IndexByte(tmpl[open:], '}')
		if closeIdx < 0 {
			b.WriteString(tmpl[open:])
			break
		}
		closeIdx += open
		name := tmpl[open+1 : closeIdx]
		if val, ok := ctx[name]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(tmpl[open : closeIdx+1])
		}
		i = closeIdx + 1
	}
	return b.String()
}

// injectAfterFirstLine inserts line immediately after the template's first
// line (the shebang), matching the source's two injected-lines
// transformations in SPEC_FULL §4.1.4.
func injectAfterFirstLine(tmpl, line string) string {
	idx := strings.IndexByte(tmpl, '\n')
	if idx < 0 {
		return tmpl + "\n" + line
	}
	return tmpl[:idx+1] + line + "\n" + tmpl[idx+1:]
}

// BatchTemplateSpec carries the per-system knobs BatchSystemLauncher needs
// to resolve, inject into, and render a batch script.
type BatchTemplateSpec struct {
	// BatchTemplate, if non-empty, is used verbatim (priority (a)).
	BatchTemplate string
	// BatchTemplateFile, if non-empty and BatchTemplate is empty, is read
	// from disk (priority (b)).
	BatchTemplateFile string
	// DefaultTemplate is used if neither of the above is set (priority (c)).
	DefaultTemplate string

	JobArrayRegexp   *regexp.Regexp
	JobArrayTemplate string
	QueueRegexp      *regexp.Regexp
	QueueTemplate    string
}

// resolve implements the three-tier script rendering policy in SPEC_FULL
// §4.1.4.
func (spec BatchTemplateSpec) resolve() (string, error) {
	if spec.BatchTemplate != "" {
		return spec.BatchTemplate, nil
	}
	if spec.BatchTemplateFile != "" {
		data, err := os.ReadFile(spec.BatchTemplateFile)
		if err != nil {
			return "", fmt.Errorf("launcher: read batch template file: %w", err)
		}
		return string(data), nil
	}
	return spec.DefaultTemplate, nil
}

// render resolves the template, applies the injected-lines transformations,
// then substitutes ctx. Injection order (open question, decided in
// DESIGN.md): job_array is injected first, then queue, so when both are
// missing the final script reads shebang / queue line / job_array line,
// because each injection prepends immediately after the shebang and the
// later injection ends up closest to it.
func (spec BatchTemplateSpec) render(ctx BatchContext) (string, error) {
	tmpl, err := spec.resolve()
	if err != nil {
		return "", err
	}

	if spec.JobArrayRegexp != nil && !spec.JobArrayRegexp.MatchString(tmpl) {
		tmpl = injectAfterFirstLine(tmpl, spec.JobArrayTemplate)
	}
	if ctx["queue"] != "" && spec.QueueRegexp != nil && !spec.QueueRegexp.MatchString(tmpl) {
		tmpl = injectAfterFirstLine(tmpl, spec.QueueTemplate)
	}

	return renderTemplate(tmpl, ctx), nil
}

// BatchSystemLauncher renders a batch script and submits it via
// SubmitCommand, parsing a job id from the captured submit output using
// JobIDRegexp, and later deletes via DeleteCommand + [job_id], per
// SPEC_FULL §4.1.4. PBSLauncher and SGELauncher are thin configurations of
// this type (see NewPBSLauncher, NewSGELauncher).
type BatchSystemLauncher struct {
	*BaseLauncher

	Template       BatchTemplateSpec
	BatchFileName  string
	SubmitCommand  []string
	DeleteCommand  []string
	JobIDRegexp    *regexp.Regexp
	Context        BatchContext

	jobID string
}

// NewBatchSystemLauncher constructs a BatchSystemLauncher in StateBefore.
func NewBatchSystemLauncher(id, workDir string, template BatchTemplateSpec, batchFileName string, submitCommand, deleteCommand []string, jobIDRegexp *regexp.Regexp, ctx BatchContext, loop *Loop, logger *slog.Logger) *BatchSystemLauncher {
	return &BatchSystemLauncher{
		BaseLauncher:  NewBaseLauncher(id, workDir, loop, logger),
		Template:      template,
		BatchFileName: batchFileName,
		SubmitCommand: submitCommand,
		DeleteCommand: deleteCommand,
		JobIDRegexp:   jobIDRegexp,
		Context:       ctx,
	}
}

// FindArgs returns the submit command this launcher runs.
func (b *BatchSystemLauncher) FindArgs() []string {
	return append(append([]string{}, b.SubmitCommand...), b.scriptPath())
}

func (b *BatchSystemLauncher) scriptPath() string {
	return filepath.Join(b.WorkDir, b.BatchFileName)
}

// writeScript renders and writes the batch script to work_dir/batch_file_name,
// chmod'd to owner rwx (mode 0700) per SPEC_FULL §6 ("Persisted state").
// Rendering the same context twice produces byte-identical output (§8
// invariant 8), since render is a pure function of Template and ctx.
func (b *BatchSystemLauncher) writeScript() (string, error) {
	rendered, err := b.Template.render(b.Context)
	if err != nil {
		return "", err
	}
	path := b.scriptPath()
	if err := os.WriteFile(path, []byte(rendered), 0o700); err != nil {
		return "", fmt.Errorf("launcher: write batch script: %w", err)
	}
	// os.WriteFile honors the mode only on creation; chmod explicitly so a
	// pre-existing file (e.g. from a prior run) ends up with the same mode.
	if err := os.Chmod(path, 0o700); err != nil {
		return "", fmt.Errorf("launcher: chmod batch script: %w", err)
	}
	return rendered, nil
}

// Start writes the batch script, submits it, and parses the job id from the
// submit command's stdout.
func (b *BatchSystemLauncher) Start() (StartData, error) {
	if b.CurrentState() != StateBefore {
		return nil, &ProcessStateError{Op: "start", State: b.CurrentState()}
	}
	if _, err := b.writeScript(); err != nil {
		return nil, err
	}

	argv := append(append([]string{}, b.SubmitCommand...), b.scriptPath())
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = b.WorkDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &LauncherError{Msg: fmt.Sprintf("batch submit command failed: %v: %s", err, output)}
	}

	match := b.JobIDRegexp.FindStringSubmatch(string(output))
	if match == nil {
		return nil, &LauncherError{Msg: fmt.Sprintf("Job id couldn't be determined: %s", output)}
	}
	jobID := match[len(match)-1]
	b.jobID = jobID

	data := StartData{"job_id": jobID, "output": string(output)}
	if err := b.NotifyStart(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Stop issues DeleteCommand + [job_id]. Failures here are swallowed:
// notify_stop is still called so observers are not starved, per SPEC_FULL
// §7 ("Batch stop failure — swallowed").
func (b *BatchSystemLauncher) Stop() error {
	if b.CurrentState() != StateRunning {
		return nil
	}
	argv := append(append([]string{}, b.DeleteCommand...), b.jobID)
	cmd := exec.Command(argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil && b.Logger != nil {
		b.Logger.Warn("batch delete command failed (non-fatal)", "launcher_id", b.ID, "job_id", b.jobID, "error", err, "output", string(output))
	}
	b.NotifyStop(StopData{"job_id": b.jobID, "output": string(output)})
	return nil
}

// Signal is not meaningful for batch-system launchers; PBS/SGE expose no
// general signal delivery beyond submit/delete, so this is a no-op.
func (b *BatchSystemLauncher) Signal(sig Signal) error {
	return nil
}

var (
	pbsJobIDRegexp = regexp.MustCompile(`\d+`)

	pbsJobArrayRegexp = regexp.MustCompile(`#PBS\W+-t\W+[\w,-]+`)
	pbsQueueRegexp    = regexp.MustCompile(`#PBS\W+-q\W+\$?\w+`)

	sgeJobArrayRegexp = regexp.MustCompile(`#\$\W+-t\W+[\w,-]+`)
	sgeQueueRegexp    = regexp.MustCompile(`#\$\W+-q\W+\$?\w+`)
)

// NewPBSLauncher constructs a BatchSystemLauncher preconfigured with PBS's
// qsub/qdel commands and array/queue regexes and templates.
func NewPBSLauncher(id, workDir string, defaultTemplate, batchTemplate, batchTemplateFile string, ctx BatchContext, loop *Loop, logger *slog.Logger) *BatchSystemLauncher {
	spec := BatchTemplateSpec{
		BatchTemplate:     batchTemplate,
		BatchTemplateFile: batchTemplateFile,
		DefaultTemplate:   defaultTemplate,
		JobArrayRegexp:    pbsJobArrayRegexp,
		JobArrayTemplate:  "#PBS -t 1-{n}",
		QueueRegexp:       pbsQueueRegexp,
		QueueTemplate:     "#PBS -q {queue}",
	}
	return NewBatchSystemLauncher(id, workDir, spec, "pbs_script.sh", []string{"qsub"}, []string{"qdel"}, pbsJobIDRegexp, ctx, loop, logger)
}

// NewSGELauncher constructs a BatchSystemLauncher preconfigured with SGE's
// array/queue regexes and templates; SGE reuses PBS's qsub/qdel commands per
// SPEC_FULL §4.1.4 ("SGE uses PBS's commands but different array/queue
// regexes and templates").
func NewSGELauncher(id, workDir string, defaultTemplate, batchTemplate, batchTemplateFile string, ctx BatchContext, loop *Loop, logger *slog.Logger) *BatchSystemLauncher {
	spec := BatchTemplateSpec{
		BatchTemplate:     batchTemplate,
		BatchTemplateFile: batchTemplateFile,
		DefaultTemplate:   defaultTemplate,
		JobArrayRegexp:    sgeJobArrayRegexp,
		JobArrayTemplate:  "#$ -t 1-{n}",
		QueueRegexp:       sgeQueueRegexp,
		QueueTemplate:     "#$ -q {queue}",
	}
	return NewBatchSystemLauncher(id, workDir, spec, "sge_script.sh", []string{"qsub"}, []string{"qdel"}, pbsJobIDRegexp, ctx, loop, logger)
}
