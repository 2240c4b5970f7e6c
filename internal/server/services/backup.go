package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"

	"github.com/dmitrijs2005/tasksync/internal/logging"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	sc "github.com/dmitrijs2005/tasksync/internal/server/config"
	"github.com/dmitrijs2005/tasksync/internal/server/models"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/repomanager"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// Uploader is the part of *s3.Client the snapshotter needs.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Uploader builds an S3 client from the server config. Static
// credentials are used when a root user is configured, otherwise the
// default AWS credential chain applies.
func NewS3Uploader(ctx context.Context, cfg *sc.Config) (Uploader, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3RootUser != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Snapshot is the decoded content of one snapshot object.
type Snapshot struct {
	AccountID string         `json:"account_id"`
	Seq       int64          `json:"seq"`
	TakenAt   int64          `json:"taken_at"`
	Changes   []proto.Change `json:"changes"`
}

// SnapshotKey is the object key for an account's snapshot at seq.
func SnapshotKey(accountID string, seq int64) string {
	return fmt.Sprintf("accounts/%s/%d.json.sz", accountID, seq)
}

// EncodeSnapshot serialises s as snappy-compressed JSON.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// BackupService periodically writes every changed account's slot table to
// object storage.
type BackupService struct {
	repomanager repomanager.RepositoryManager
	uploader    Uploader
	bucket      string
	interval    time.Duration
	logger      logging.Logger
	now         func() time.Time

	mu   sync.Mutex
	last map[string]int64
}

func NewBackupService(m repomanager.RepositoryManager, u Uploader, cfg *sc.Config, l logging.Logger) *BackupService {
	return &BackupService{
		repomanager: m,
		uploader:    u,
		bucket:      cfg.S3Bucket,
		interval:    cfg.BackupInterval,
		logger:      l.With("module", "backup_service"),
		now:         time.Now,
		last:        make(map[string]int64),
	}
}

// Run snapshots on every tick until ctx is cancelled.
func (b *BackupService) Run(ctx context.Context) {
	if b.interval <= 0 {
		return
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := b.SnapshotAll(ctx)
			if err != nil {
				b.logger.Error(ctx, "snapshot round incomplete", "accounts", n, "error", err)
				continue
			}
			b.logger.Info(ctx, "snapshot round finished", "accounts", n)
		}
	}
}

// SnapshotAll uploads a snapshot for each account whose sequence moved since
// its previous snapshot and returns how many were written. A failing account
// is logged and retried next round without holding back the others; the
// failures are joined into the returned error.
func (b *BackupService) SnapshotAll(ctx context.Context) (int, error) {
	accounts, err := b.repomanager.Repos().Accounts.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	var errs []error
	written := 0
	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		b.mu.Lock()
		done := b.last[a.ID]
		b.mu.Unlock()
		if a.CurrentSeq == 0 || a.CurrentSeq <= done {
			continue
		}

		seq, err := b.SnapshotAccount(ctx, a)
		if err != nil {
			b.logger.Error(ctx, "snapshot failed", "account_id", a.ID, "error", err)
			errs = append(errs, err)
			continue
		}

		b.mu.Lock()
		b.last[a.ID] = seq
		b.mu.Unlock()
		written++
	}
	return written, errors.Join(errs...)
}

// SnapshotAccount captures the account's slots at a consistent sequence and
// uploads them. It returns the sequence captured.
func (b *BackupService) SnapshotAccount(ctx context.Context, a *models.Account) (int64, error) {
	snap := &Snapshot{AccountID: a.ID, TakenAt: b.now().UnixMicro()}

	err := b.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		seq, err := r.Accounts.LockForUpdate(ctx, a.ID)
		if err != nil {
			return err
		}
		slots, err := r.Slots.SelectSince(ctx, a.ID, 0)
		if err != nil {
			return err
		}
		snap.Seq = seq
		snap.Changes = make([]proto.Change, 0, len(slots))
		for _, s := range slots {
			snap.Changes = append(snap.Changes, s.Change())
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("read account %s: %w", a.ID, err)
	}

	body, err := EncodeSnapshot(snap)
	if err != nil {
		return 0, err
	}

	key := SnapshotKey(a.ID, snap.Seq)
	_, err = b.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-snappy"),
	})
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", key, err)
	}

	b.logger.Debug(ctx, "snapshot uploaded", "account_id", a.ID, "seq", snap.Seq, "bytes", len(body))
	return snap.Seq, nil
}
