package jobs

// Queue is a FIFO batch of jobs for Poller.WaitAll. It is owned by a
// single poller and is not safe for concurrent use.
type Queue struct {
	jobs []Job
}

// Push appends a job to the back of the queue.
func (q *Queue) Push(j Job) {
	q.jobs = append(q.jobs, j)
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

func (q *Queue) pop() Job {
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j
}
