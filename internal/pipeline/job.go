package pipeline

import "sync"

// Stage is one state in the job lifecycle from spec §4.5.
type Stage string

const (
	StageInit             Stage = "init"
	StageConnectingTunnel Stage = "connecting_tunnel"
	StageResolvingBinaries Stage = "resolving_binaries"
	StageVerifyingSource  Stage = "verifying_source"
	StageStreaming        Stage = "streaming"
	StageFinalizing       Stage = "finalizing"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// Job tracks a single backup or restore operation's progress so a caller
// (the Orchestrator, or a future status-reporting front end) can observe
// which stage a long-running operation is in without polling the process
// table, the way the teacher's OperationLogger tracks elapsed time for a
// single named operation.
type Job struct {
	mu          sync.RWMutex
	stage       Stage
	bytesMoved  int64
	lastErr     error
}

func newJob() *Job {
	return &Job{stage: StageInit}
}

func (j *Job) setStage(s Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stage = s
}

func (j *Job) addBytes(n int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.bytesMoved += n
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stage = StageFailed
	j.lastErr = err
}

// Stage returns the job's current lifecycle stage.
func (j *Job) Stage() Stage {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stage
}

// BytesMoved returns the number of bytes streamed through the pipeline so far.
func (j *Job) BytesMoved() int64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.bytesMoved
}

// Err returns the failure that ended the job, if any.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.lastErr
}
