package module

import (
	"context"
	"strings"

	"github.com/joeycumines/cvansible/internal/commcell"
)

type jobArgs interface {
	jobID() int64
	wait() bool
}

func requireJobID(id Int) error {
	if id <= 0 {
		return missingArgs("job_id")
	}
	return nil
}

type jobStatusArgs struct {
	JobID Int  `json:"job_id"`
	Wait  Bool `json:"wait_for_job_completion"`
}

func (a *jobStatusArgs) Validate() error { return requireJobID(a.JobID) }
func (a *jobStatusArgs) jobID() int64    { return int64(a.JobID) }
func (a *jobStatusArgs) wait() bool      { return bool(a.Wait) }

type jobKillArgs struct {
	JobID Int  `json:"job_id"`
	Wait  Bool `json:"wait_for_job_to_kill"`
}

func (a *jobKillArgs) Validate() error { return requireJobID(a.JobID) }
func (a *jobKillArgs) jobID() int64    { return int64(a.JobID) }
func (a *jobKillArgs) wait() bool      { return bool(a.Wait) }

type jobSuspendArgs struct {
	JobID Int  `json:"job_id"`
	Wait  Bool `json:"wait_for_job_to_suspend"`
}

func (a *jobSuspendArgs) Validate() error { return requireJobID(a.JobID) }
func (a *jobSuspendArgs) jobID() int64    { return int64(a.JobID) }
func (a *jobSuspendArgs) wait() bool      { return bool(a.Wait) }

type jobResumeArgs struct {
	JobID Int  `json:"job_id"`
	Wait  Bool `json:"wait_for_job_to_resume"`
}

func (a *jobResumeArgs) Validate() error { return requireJobID(a.JobID) }
func (a *jobResumeArgs) jobID() int64    { return int64(a.JobID) }
func (a *jobResumeArgs) wait() bool      { return bool(a.Wait) }

func isSuspended(status string) bool {
	return strings.EqualFold(status, "suspended")
}

// JobStatusModule reports a job's status, optionally after it finishes.
type JobStatusModule struct {
	*BaseModule
}

// NewJobStatusModule creates the job.status module.
func NewJobStatusModule() *JobStatusModule {
	return &JobStatusModule{
		BaseModule: NewBaseModule("job.status", "Report the status of a job", Options{}),
	}
}

// NewArgs returns the job.status arguments.
func (m *JobStatusModule) NewArgs() any { return &jobStatusArgs{} }

// Execute reads the job summary.
func (m *JobStatusModule) Execute(ctx context.Context, inv *Invocation, result Result) error {
	args := inv.Args.(*jobStatusArgs)
	var (
		summary *commcell.JobSummary
		err     error
	)
	if args.wait() {
		summary, err = inv.Conn.WaitForJob(ctx, args.jobID(), commcell.IsFinished)
	} else {
		summary, err = inv.Conn.Job(ctx, args.jobID())
	}
	if err != nil {
		return err
	}
	result["job_status"] = summary.Status
	result.SetChanged(false)
	return nil
}

// JobControlModule applies a control action to a job.
type JobControlModule struct {
	*BaseModule
	action  commcell.JobAction
	newArgs func() jobArgs
	reached func(status string) bool
}

// NewArgs returns the arguments for this action.
func (m *JobControlModule) NewArgs() any { return m.newArgs() }

// Execute applies the action, then waits for its effect if asked to.
func (m *JobControlModule) Execute(ctx context.Context, inv *Invocation, result Result) error {
	args := inv.Args.(jobArgs)
	if err := inv.Conn.JobControl(ctx, args.jobID(), m.action); err != nil {
		return err
	}
	if args.wait() {
		summary, err := inv.Conn.WaitForJob(ctx, args.jobID(), m.reached)
		if err != nil {
			return err
		}
		result["job_status"] = summary.Status
	}
	result.SetChanged(true)
	return nil
}

// NewJobKillModule creates the job.kill module.
func NewJobKillModule() *JobControlModule {
	return &JobControlModule{
		BaseModule: NewBaseModule("job.kill", "Kill a job", Options{}),
		action:     commcell.JobKill,
		newArgs:    func() jobArgs { return &jobKillArgs{} },
		reached:    commcell.IsFinished,
	}
}

// NewJobSuspendModule creates the job.suspend module.
func NewJobSuspendModule() *JobControlModule {
	return &JobControlModule{
		BaseModule: NewBaseModule("job.suspend", "Suspend a job", Options{}),
		action:     commcell.JobSuspend,
		newArgs:    func() jobArgs { return &jobSuspendArgs{} },
		reached: func(status string) bool {
			return isSuspended(status) || commcell.IsFinished(status)
		},
	}
}

// NewJobResumeModule creates the job.resume module.
func NewJobResumeModule() *JobControlModule {
	return &JobControlModule{
		BaseModule: NewBaseModule("job.resume", "Resume a suspended job", Options{}),
		action:     commcell.JobResume,
		newArgs:    func() jobArgs { return &jobResumeArgs{} },
		reached:    func(status string) bool { return !isSuspended(status) },
	}
}
