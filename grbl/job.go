package grbl

import "sync"

// JobStatus tracks a streaming job through its life.
type JobStatus int

const (
	JobPending JobStatus = iota
	JobRunning
	JobDone
	JobAborted
)

func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobDone:
		return "done"
	case JobAborted:
		return "aborted"
	}
	return "unknown"
}

// A Job is a named program waiting to be streamed.
type Job struct {
	Name    string
	Program []byte
	Status  JobStatus
}

// JobEntry is one line of the pending job listing. Position is 1-based.
type JobEntry struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
}

// JobQueue is a FIFO of pending jobs.
type JobQueue struct {
	mx   sync.Mutex
	jobs []*Job
}

// Enqueue adds a job with a private copy of program and returns the new
// queue depth.
func (q *JobQueue) Enqueue(name string, program []byte) int {
	p := make([]byte, len(program))
	copy(p, program)

	q.mx.Lock()
	defer q.mx.Unlock()
	q.jobs = append(q.jobs, &Job{Name: name, Program: p, Status: JobPending})
	return len(q.jobs)
}

// Pop removes and returns the oldest job, or nil.
func (q *JobQueue) Pop() *Job {
	q.mx.Lock()
	defer q.mx.Unlock()
	if len(q.jobs) == 0 {
		return nil
	}
	j := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	return j
}

// Clear marks every pending job aborted and empties the queue. It returns
// the number of jobs dropped.
func (q *JobQueue) Clear() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	n := len(q.jobs)
	for _, j := range q.jobs {
		j.Status = JobAborted
	}
	q.jobs = nil
	return n
}

func (q *JobQueue) Len() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return len(q.jobs)
}

// PeekAll lists pending jobs in the order they will run.
func (q *JobQueue) PeekAll() []JobEntry {
	q.mx.Lock()
	defer q.mx.Unlock()
	res := make([]JobEntry, len(q.jobs))
	for i, j := range q.jobs {
		res[i] = JobEntry{Position: i + 1, Name: j.Name}
	}
	return res
}
