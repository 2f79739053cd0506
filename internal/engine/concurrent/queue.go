package concurrent

import (
	"sync"

	"github.com/kget-downloader/kget/internal/engine/types"
)

// Task is a planned chunk together with its position in the plan.
type Task struct {
	Index int
	Chunk types.Chunk
}

// TaskQueue hands out each planned chunk exactly once.
type TaskQueue struct {
	mu    sync.Mutex
	tasks []Task
	head  int
}

func NewTaskQueue(chunks []types.Chunk) *TaskQueue {
	tasks := make([]Task, len(chunks))
	for i, c := range chunks {
		tasks[i] = Task{Index: i, Chunk: c}
	}
	return &TaskQueue{tasks: tasks}
}

// Pop claims the next unclaimed chunk.
func (q *TaskQueue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.tasks) {
		return Task{}, false
	}
	t := q.tasks[q.head]
	q.head++
	return t, true
}

// Len returns the number of unclaimed chunks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks) - q.head
}

// DrainRemaining claims and returns every chunk not yet handed out.
func (q *TaskQueue) DrainRemaining() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.tasks) {
		return nil
	}
	remaining := make([]Task, len(q.tasks)-q.head)
	copy(remaining, q.tasks[q.head:])
	q.head = len(q.tasks)
	return remaining
}
