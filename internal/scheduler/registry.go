// Package scheduler keeps an external job registry converged with the
// schedules declared on validation configuration rows.
package scheduler

import "context"

// JobRecord is one scheduled job as the external registry sees it.
type JobRecord struct {
	Name           string `json:"name"`
	CronExpression string `json:"cronExpression"`
	CallbackTarget string `json:"callbackTarget"`
}

// JobRegistry is the external scheduling service. Job names produced here
// are stable and prefix-filterable so ListJobs returns exactly our own jobs.
type JobRegistry interface {
	ListJobs(ctx context.Context, namePrefix string) ([]JobRecord, error)
	CreateJob(ctx context.Context, record JobRecord) error
	UpdateJob(ctx context.Context, record JobRecord) error
	DeleteJob(ctx context.Context, name string) error
}
