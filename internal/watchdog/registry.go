package watchdog

import (
	"sort"
	"time"

	"inboxwatch/internal/decoder"
)

// Job is a decoder run for one promoted file.
type Job struct {
	ID         string
	Name       string
	WorkPath   string
	OutputPath string
	LogPath    string
	Command    decoder.Command
	Process    decoder.Process
	StartedAt  time.Time

	exited        bool
	exit          decoder.State
	finishedAt    time.Time
	killed        bool
	stuckReported bool
	holdsSlot     bool
}

// JobInfo is a read-only view of a running job.
type JobInfo struct {
	ID        string
	Name      string
	PID       int
	StartedAt time.Time
	Exited    bool
}

// jobRegistry maps filenames to in-flight jobs. Callers hold the scheduler lock.
type jobRegistry struct {
	jobs map[string]*Job
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*Job)}
}

func (r *jobRegistry) add(job *Job) {
	r.jobs[job.Name] = job
}

func (r *jobRegistry) get(name string) (*Job, bool) {
	job, ok := r.jobs[name]
	return job, ok
}

func (r *jobRegistry) remove(name string) {
	delete(r.jobs, name)
}

func (r *jobRegistry) has(name string) bool {
	_, ok := r.jobs[name]
	return ok
}

func (r *jobRegistry) len() int {
	return len(r.jobs)
}

func (r *jobRegistry) names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *jobRegistry) snapshot() []JobInfo {
	names := r.names()
	out := make([]JobInfo, 0, len(names))
	for _, name := range names {
		job := r.jobs[name]
		info := JobInfo{ID: job.ID, Name: job.Name, StartedAt: job.StartedAt, Exited: job.exited}
		if job.Process != nil {
			info.PID = job.Process.PID()
		}
		out = append(out, info)
	}
	return out
}
