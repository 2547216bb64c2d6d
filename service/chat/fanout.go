package chat

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout delivers one payload to a snapshot of connections through a
// small worker pool, so a slow recipient queue never stalls the
// submitting connection's read loop.
type Fanout struct {
	jobs chan fanoutJob
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	for i := 0; i < workers; i++ {
		go func() {
			for job := range f.jobs {
				for _, c := range job.conns {
					// mid-close or saturated clients are skipped
					c.Enqueue(job.payload)
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Broadcast(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	f.jobs <- fanoutJob{conns: conns, payload: payload}
}

// Close stops the workers once queued jobs drain.
func (f *Fanout) Close() {
	close(f.jobs)
}
