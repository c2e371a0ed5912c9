package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dealdrop/dealdrop/internal/domain"
)

type AbuseRepository interface {
	CreateAbuseEntry(ctx context.Context, e domain.AbuseLogEntry) error
}

const abuseWriteTimeout = 2 * time.Second

// AbuseRecorder persists rejected-attempt entries without ever failing or
// delaying the request that triggered them. Writes run detached from the
// request context so a canceled request cannot abort them; failures are
// logged and dropped.
type AbuseRecorder struct {
	repo   AbuseRepository
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewAbuseRecorder(repo AbuseRepository, logger *zap.Logger) *AbuseRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AbuseRecorder{repo: repo, logger: logger}
}

func (r *AbuseRecorder) Record(ctx context.Context, e domain.AbuseLogEntry) {
	// An entry without a device hash would be useless for review; skip it
	// rather than write noise.
	if e.DeviceHash == "" {
		return
	}
	if e.ID == "" {
		e.ID = newID()
	}

	detached := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		writeCtx, cancel := context.WithTimeout(detached, abuseWriteTimeout)
		defer cancel()
		if err := r.repo.CreateAbuseEntry(writeCtx, e); err != nil {
			r.logger.Warn("abuse log write failed",
				zap.String("reason", e.Reason),
				zap.Error(err),
			)
		}
	}()
}

// Flush waits for in-flight writes; used on shutdown and in tests.
func (r *AbuseRecorder) Flush() {
	r.wg.Wait()
}
