package launcher

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
)

// winHPCJobIDRegexp extracts a job id from the `job submit` command's
// stdout.
var winHPCJobIDRegexp = regexp.MustCompile(`Job\s+ID:\s+(\d+)`)

// hpcTask is one CT_Task element of the job description XML.
type hpcTask struct {
	XMLName        xml.Name `xml:"Task"`
	CommandLine    string   `xml:"CommandLine,attr"`
	WorkDirectory  string   `xml:"WorkDirectory,attr"`
	MinCores       int      `xml:"MinCores,attr"`
	MaxCores       int      `xml:"MaxCores,attr"`
}

// hpcJob is the root element of the Windows HPC job description XML that
// WindowsHPCLauncher writes to profile_dir/job_file_name before invoking
// `job submit`.
type hpcJob struct {
	XMLName  xml.Name  `xml:"Job"`
	NumTasks int       `xml:"NumberOfTasks,attr"`
	Tasks    []hpcTask `xml:"Tasks>Task"`
}

// WindowsHPCLauncher writes an XML job description under
// profile_dir/job_file_name (controller or engine-set flavor selected by
// how many Tasks are passed to NewWindowsHPCLauncher), then invokes `job
// submit /jobfile:... /scheduler:...`. The job id is extracted from stdout
// by regex. Stop invokes `job cancel <job_id> /scheduler:...` and is
// idempotent: a cancel failure is treated as "already stopped" and still
// results in NotifyStop, per SPEC_FULL §4.1.5.
type WindowsHPCLauncher struct {
	*BaseLauncher

	ProfileDir    string
	JobFileName   string
	SchedulerName string
	Job           hpcJob

	jobID string
}

// NewWindowsHPCLauncher constructs a WindowsHPCLauncher in StateBefore.
// Passing a single task builds the controller flavor; passing N tasks
// builds the engine-set flavor.
func NewWindowsHPCLauncher(id, profileDir, jobFileName, schedulerName string, tasks []hpcTask, loop *Loop, logger *slog.Logger) *WindowsHPCLauncher {
	return &WindowsHPCLauncher{
		BaseLauncher:  NewBaseLauncher(id, profileDir, loop, logger),
		ProfileDir:    profileDir,
		JobFileName:   jobFileName,
		SchedulerName: schedulerName,
		Job: hpcJob{
			NumTasks: len(tasks),
			Tasks:    tasks,
		},
	}
}

func (w *WindowsHPCLauncher) jobFilePath() string {
	return filepath.Join(w.ProfileDir, w.JobFileName)
}

// FindArgs returns the `job submit` command line.
func (w *WindowsHPCLauncher) FindArgs() []string {
	return []string{"job", "submit", "/jobfile:" + w.jobFilePath(), "/scheduler:" + w.SchedulerName}
}

// Start writes the job description XML and submits it.
func (w *WindowsHPCLauncher) Start() (StartData, error) {
	if w.CurrentState() != StateBefore {
		return nil, &ProcessStateError{Op: "start", State: w.CurrentState()}
	}

	data, err := xml.MarshalIndent(w.Job, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("launcher: marshal winhpc job xml: %w", err)
	}
	if err := os.WriteFile(w.jobFilePath(), data, 0o600); err != nil {
		return nil, fmt.Errorf("launcher: write winhpc job file: %w", err)
	}

	argv := w.FindArgs()
	cmd := exec.Command(argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &LauncherError{Msg: fmt.Sprintf("winhpc job submit failed: %v: %s", err, output)}
	}

	match := winHPCJobIDRegexp.FindStringSubmatch(string(output))
	if match == nil {
		return nil, &LauncherError{Msg: fmt.Sprintf("Job id couldn't be determined: %s", output)}
	}
	w.jobID = match[1]

	result := StartData{"job_id": w.jobID, "output": string(output)}
	if err := w.NotifyStart(result); err != nil {
		return nil, err
	}
	return result, nil
}

// Stop invokes `job cancel <job_id> /scheduler:...`. A cancel failure is
// treated as "already stopped": NotifyStop still fires so observers are not
// starved, matching BatchSystemLauncher's swallowed-stop-failure behavior.
func (w *WindowsHPCLauncher) Stop() error {
	if w.CurrentState() != StateRunning {
		return nil
	}
	cmd := exec.Command("job", "cancel", w.jobID, "/scheduler:"+w.SchedulerName)
	output, err := cmd.CombinedOutput()
	if err != nil && w.Logger != nil {
		w.Logger.Warn("winhpc job cancel failed (treated as already stopped)", "launcher_id", w.ID, "job_id", w.jobID, "error", err, "output", string(output))
	}
	w.NotifyStop(StopData{"job_id": w.jobID, "output": string(output)})
	return nil
}

// Signal has no WinHPC equivalent beyond cancel; this is a no-op.
func (w *WindowsHPCLauncher) Signal(sig Signal) error {
	return nil
}
