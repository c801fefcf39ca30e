package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
)

const defaultMaxRetries = 3

// Manifest is the artifact record written for a submitted mint transaction.
type Manifest struct {
	TxID      string           `json:"tx_id"`
	CreatedAt int64            `json:"created_at"`
	Handles   []*ManifestEntry `json:"handles"`
}

type ManifestEntry struct {
	SessionID string `json:"session_id"`
	Handle    string `json:"handle"`
	WalletID  string `json:"wallet_id"`
	Recipient string `json:"recipient"`
	Cost      int64  `json:"cost"`
}

// FileBackup writes one manifest per transaction into dir, retrying with exponential
// backoff a bounded number of times.
type FileBackup struct {
	logger     *logger.Logger
	dir        string
	maxRetries uint64
	initial    time.Duration
	now        func() time.Time
}

func NewFileBackup(dir string, logger *logger.Logger) *FileBackup {
	return &FileBackup{
		logger:     logger,
		dir:        dir,
		maxRetries: defaultMaxRetries,
		initial:    500 * time.Millisecond,
		now:        time.Now,
	}
}

func (b *FileBackup) Backup(ctx context.Context, txID string, sessions []*models.ActiveSession) error {
	manifest := &Manifest{TxID: txID, CreatedAt: b.now().UnixMilli()}
	for _, session := range sessions {
		manifest.Handles = append(manifest.Handles, &ManifestEntry{
			SessionID: session.ID,
			Handle:    session.Handle,
			WalletID:  session.WalletID,
			Recipient: session.ReturnAddress,
			Cost:      session.Cost,
		})
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.initial
	attempt := 0
	op := func() error {
		attempt++
		if err := b.write(txID, data); err != nil {
			b.logger.Warnw("Backup attempt failed", "tx", txID, "attempt", attempt, "error", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, b.maxRetries), ctx)); err != nil {
		return fmt.Errorf("failed to back up tx %s after %d attempts: %w", txID, attempt, err)
	}
	b.logger.Debugw("Backed up mint artifacts", "tx", txID, "handles", len(sessions))
	return nil
}

// write creates the manifest atomically so a reader never sees a partial file.
func (b *FileBackup) write(txID string, data []byte) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(b.dir, ".manifest-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(b.dir, filepath.Base(txID)+".json"))
}
