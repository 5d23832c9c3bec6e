package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// queueDepth bounds the per-workspace job queue (§9 "a bounded per-workspace
// task queue with a worker pool"). A full queue drops the job with a log
// line — engine runs are idempotent, so the next delivery's dispatch
// reprocesses the same convergent state (§5 "Across deliveries").
const queueDepth = 64

// job is one unit of post-ACK work: run the Conflict Engine, then the
// Feature Engine (which transitively invokes the Health Engine), for one
// workspace's push (§4.6 step 12, §2 data flow).
type job struct {
	workspaceID   string
	modifiedFiles []string
	triggerBranch string
	commitHash    string
}

// Dispatcher schedules C3->C4 per workspace on a background task queue,
// naturally serializing a workspace's engine runs without a DB lock (§9
// preferred implementation). Distinct workspaces run fully concurrently.
type Dispatcher struct {
	conflict *ConflictEngine
	feature  *FeatureEngine
	log      *zap.Logger

	mu     sync.Mutex
	queues map[string]chan job
	ctx    context.Context
}

// NewDispatcher constructs a Dispatcher bound to ctx; workers exit when ctx is cancelled.
func NewDispatcher(ctx context.Context, conflict *ConflictEngine, feature *FeatureEngine, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		conflict: conflict,
		feature:  feature,
		log:      log,
		queues:   make(map[string]chan job),
		ctx:      ctx,
	}
}

// Dispatch enqueues a post-ACK engine run for workspaceID (§4.6 step 12).
// Called after the webhook ingestor has already responded 200 to the
// upstream; failures here are never visible to the webhook caller.
func (d *Dispatcher) Dispatch(workspaceID string, modifiedFiles []string, triggerBranch, commitHash string) {
	q := d.queueFor(workspaceID)

	select {
	case q <- job{workspaceID: workspaceID, modifiedFiles: modifiedFiles, triggerBranch: triggerBranch, commitHash: commitHash}:
	default:
		d.log.Warn("workspace engine queue full, dropping dispatch",
			zap.String("workspace_id", workspaceID))
	}
}

func (d *Dispatcher) queueFor(workspaceID string) chan job {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, ok := d.queues[workspaceID]
	if ok {
		return q
	}

	q = make(chan job, queueDepth)
	d.queues[workspaceID] = q
	go d.worker(q)
	return q
}

func (d *Dispatcher) worker(q chan job) {
	for {
		select {
		case <-d.ctx.Done():
			return
		case j := <-q:
			d.conflict.Run(d.ctx, j.workspaceID, j.modifiedFiles, j.triggerBranch)
			d.feature.Run(d.ctx, j.workspaceID, j.modifiedFiles, j.commitHash)
		}
	}
}
