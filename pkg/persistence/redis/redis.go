// Package redis provides Redis-backed persistence for workspaces, for
// deployments where several engine processes share one canvas store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arkhamlabs/arkham/pkg/models"
	"github.com/arkhamlabs/arkham/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	workspaceKeyPrefix = "arkham:workspace:"
	workspaceIndexKey  = "arkham:workspaces"
)

// Persistence implements persistence.Persistence on Redis. Each
// workspace is a JSON value; ids are tracked in a set for listing.
type Persistence struct {
	client *redis.Client
}

// NewPersistence creates a Redis persistence from a redis:// URL.
func NewPersistence(url string) (persistence.Persistence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return &Persistence{client: redis.NewClient(opts)}, nil
}

func (rp *Persistence) Close(_ context.Context) error {
	return rp.client.Close()
}

func (rp *Persistence) HealthCheck(ctx context.Context) error {
	return rp.client.Ping(ctx).Err()
}

func (rp *Persistence) Workspaces(ctx context.Context) ([]*models.Workspace, error) {
	ids, err := rp.client.SMembers(ctx, workspaceIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	workspaces := make([]*models.Workspace, 0, len(ids))

	for _, id := range ids {
		workspace, err := rp.WorkspaceByID(ctx, id)
		if err != nil {
			// Index entries can outlive their value; skip them.
			if persistence.IsWorkspaceNotFound(err) {
				continue
			}

			return nil, err
		}

		workspaces = append(workspaces, workspace)
	}

	return workspaces, nil
}

func (rp *Persistence) WorkspaceByID(ctx context.Context, id string) (*models.Workspace, error) {
	body, err := rp.client.Get(ctx, workspaceKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewWorkspaceError("GetByID", id, persistence.ErrWorkspaceNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workspace %s: %w", id, err)
	}

	var workspace models.Workspace

	err = json.Unmarshal(body, &workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workspace %s: %w", id, err)
	}

	return &workspace, nil
}

func (rp *Persistence) SaveWorkspace(ctx context.Context, workspace *models.Workspace) error {
	now := time.Now().UTC()
	if workspace.CreatedAt.IsZero() {
		workspace.CreatedAt = now
	}

	workspace.UpdatedAt = now

	data, err := json.Marshal(workspace)
	if err != nil {
		return fmt.Errorf("failed to marshal workspace %s: %w", workspace.ID, err)
	}

	pipe := rp.client.TxPipeline()
	pipe.Set(ctx, workspaceKeyPrefix+workspace.ID, data, 0)
	pipe.SAdd(ctx, workspaceIndexKey, workspace.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save workspace %s: %w", workspace.ID, err)
	}

	return nil
}

func (rp *Persistence) DeleteWorkspace(ctx context.Context, id string) error {
	pipe := rp.client.TxPipeline()
	pipe.Del(ctx, workspaceKeyPrefix+id)
	pipe.SRem(ctx, workspaceIndexKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete workspace %s: %w", id, err)
	}

	return nil
}
