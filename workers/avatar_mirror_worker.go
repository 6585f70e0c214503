// workers/avatar_mirror_worker.go
package workers

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"dilemma-arena/models"
	"dilemma-arena/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const avatarMaxBytes = 2 << 20 // SecondMe avatars are small; cap defensively

// AvatarMirrorWorker copies remote SecondMe avatar URLs into the R2/CDN
// bucket so game pages never hot-link the upstream service. Users are
// mirrored once; a changed upstream avatar is picked up on next login when
// AvatarURL is rewritten and MirroredAvatarURL cleared.
type AvatarMirrorWorker struct {
	db       *gorm.DB
	interval time.Duration
}

func NewAvatarMirrorWorker(db *gorm.DB) *AvatarMirrorWorker {
	return &AvatarMirrorWorker{
		db:       db,
		interval: 1 * time.Minute,
	}
}

func (w *AvatarMirrorWorker) Start(ctx context.Context) {
	log.Println("[AvatarMirror] worker started")
	go w.run(ctx)
}

func (w *AvatarMirrorWorker) run(ctx context.Context) {
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("[AvatarMirror] worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *AvatarMirrorWorker) sweep(ctx context.Context) {
	var users []models.User
	err := w.db.WithContext(ctx).
		Where("avatar_url <> '' AND mirrored_avatar_url = ''").
		Limit(20).
		Find(&users).Error
	if err != nil {
		log.Printf("[AvatarMirror] DB error: %v", err)
		return
	}

	for _, u := range users {
		if err := w.mirror(ctx, &u); err != nil {
			log.Printf("[AvatarMirror] failed for user %s: %v", u.ID, err)
		}
	}
}

func (w *AvatarMirrorWorker) mirror(ctx context.Context, u *models.User) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.AvatarURL, nil)
	if err != nil {
		return err
	}
	resp, err := utils.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("avatar fetch returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, avatarMaxBytes))
	if err != nil {
		return err
	}

	contentType := resp.Header.Get("Content-Type")
	ext := ".png"
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
	} else if e := filepath.Ext(u.AvatarURL); e != "" {
		ext = e
	}

	key := "avatars/" + uuid.NewString() + ext
	cdnURL, err := utils.UploadBytesToR2(ctx, key, data, contentType)
	if err != nil {
		return err
	}

	err = w.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", u.ID).
		Update("mirrored_avatar_url", cdnURL).Error
	if err != nil {
		return err
	}
	log.Printf("[AvatarMirror] user %s avatar mirrored to %s", u.ID, key)
	return nil
}
