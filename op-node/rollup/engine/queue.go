package engine

import (
	"context"
)

// TaskQueue executes EngineTasks sequentially against a TaskEnv,
// preserving enqueue order. It is a plain slice-backed FIFO: the actor
// goroutine is its only caller, so no synchronization is needed.
type TaskQueue struct {
	tasks []EngineTask
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{}
}

func (q *TaskQueue) Enqueue(task EngineTask) {
	q.tasks = append(q.tasks, task)
}

func (q *TaskQueue) Len() int { return len(q.tasks) }

// Drain runs queued tasks in order until the queue is empty or a task
// returns an error, in which case the remaining tasks stay queued and
// the error is returned for the caller (the engine actor) to classify
// and react to.
func (q *TaskQueue) Drain(ctx context.Context, env *TaskEnv) error {
	for len(q.tasks) > 0 {
		task := q.tasks[0]
		if err := task.Execute(ctx, env); err != nil {
			return err
		}
		q.tasks = q.tasks[1:]
	}
	return nil
}
