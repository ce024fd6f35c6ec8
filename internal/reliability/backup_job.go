package reliability

import (
	"context"
	"time"
)

const backupTimeout = 10 * time.Minute

// BackupJob runs the backup service on the scheduler
type BackupJob struct {
	service *BackupService
}

// NewBackupJob creates the backup job
func NewBackupJob(service *BackupService) *BackupJob {
	return &BackupJob{service: service}
}

// Name returns the job name
func (j *BackupJob) Name() string { return "state_backup" }

// Run creates and uploads one backup
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()
	return j.service.CreateAndUploadBackup(ctx)
}
