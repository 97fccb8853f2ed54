// Package refs clears marketplace rows that reference a moderated image.
// Each entity type has its own resolver; cleanup dispatches on the record's
// entity type.
package refs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemarket/moderation/internal/model"
)

// Resolver clears one kind of image reference. Clear must only touch the
// entity when its current value still equals imageURL, so a later legitimate
// re-upload is never wiped by a late-running cleanup. It reports whether a
// reference was actually cleared.
type Resolver interface {
	Clear(ctx context.Context, entityID, imageURL string) (bool, error)
}

// Set maps entity types to their resolvers.
type Set map[model.EntityType]Resolver

// NewPostgresSet wires the three marketplace resolvers onto one pool.
func NewPostgresSet(pool *pgxpool.Pool) Set {
	return Set{
		model.EntityStorePhoto:        storePhotoResolver{pool},
		model.EntityUserAvatar:        userAvatarResolver{pool},
		model.EntityGuideContentImage: guideContentResolver{pool},
	}
}

// storePhotoResolver deletes the store_photos row outright; a photo row
// without an image has no meaning.
type storePhotoResolver struct {
	pool *pgxpool.Pool
}

func (r storePhotoResolver) Clear(ctx context.Context, entityID, imageURL string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM store_photos WHERE id=$1 AND image_url=$2
	`, entityID, imageURL)
	if err != nil {
		return false, fmt.Errorf("delete store photo %s: %w", entityID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// userAvatarResolver nulls the avatar field; the user row stays.
type userAvatarResolver struct {
	pool *pgxpool.Pool
}

func (r userAvatarResolver) Clear(ctx context.Context, entityID, imageURL string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET avatar_url=NULL WHERE id=$1 AND avatar_url=$2
	`, entityID, imageURL)
	if err != nil {
		return false, fmt.Errorf("clear user avatar %s: %w", entityID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// guideContentResolver nulls the content image field.
type guideContentResolver struct {
	pool *pgxpool.Pool
}

func (r guideContentResolver) Clear(ctx context.Context, entityID, imageURL string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE guide_contents SET image_url=NULL WHERE id=$1 AND image_url=$2
	`, entityID, imageURL)
	if err != nil {
		return false, fmt.Errorf("clear guide content image %s: %w", entityID, err)
	}
	return tag.RowsAffected() > 0, nil
}
