package repository

import (
	"context"
	"fmt"

	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/jackc/pgx/v5/pgtype"
)

// GetProjectOverview returns the client's latest project together with its ordered milestones.
func (r *Repository) GetProjectOverview(ctx context.Context, clientID string) (models.ProjectOverview, error) {
	var overview models.ProjectOverview
	project := &overview.Project

	err := r.db.QueryRow(ctx, SelectProjectByClientSQL, clientID).Scan(
		&project.ID, &project.ClientID, &project.Name, &project.Status, &project.Progress, &project.CreatedAt,
	)
	if err != nil {
		return models.ProjectOverview{}, fmt.Errorf("failed to get project: %w", mapPgErr(err))
	}

	rows, err := r.db.Query(ctx, SelectMilestonesSQL, project.ID)
	if err != nil {
		return models.ProjectOverview{}, fmt.Errorf("error querying milestones: %w", err)
	}
	defer rows.Close()

	overview.Milestones = []models.Milestone{}
	for rows.Next() {
		var (
			milestone   models.Milestone
			completedAt pgtype.Timestamptz
		)
		err = rows.Scan(
			&milestone.ID, &milestone.ProjectID, &milestone.Title, &milestone.Position,
			&milestone.Completed, &completedAt,
		)
		if err != nil {
			return models.ProjectOverview{}, fmt.Errorf("error scanning milestone row: %w", err)
		}
		if completedAt.Valid {
			at := completedAt.Time
			milestone.CompletedAt = &at
		}
		overview.Milestones = append(overview.Milestones, milestone)
	}

	if err = rows.Err(); err != nil {
		return models.ProjectOverview{}, fmt.Errorf("failed to iterating milestone rows: %w", err)
	}

	return overview, nil
}

// ListMessages returns the conversation of a client in chronological order.
func (r *Repository) ListMessages(ctx context.Context, clientID string) ([]models.Message, error) {
	rows, err := r.db.Query(ctx, SelectMessagesSQL, clientID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err = rows.Scan(&msg.ID, &msg.ClientID, &msg.Sender, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterating message rows: %w", err)
	}

	return messages, nil
}

// AddMessage stores a portal message.
func (r *Repository) AddMessage(ctx context.Context, msg models.Message) error {
	_, err := r.db.Exec(ctx, InsertMessageSQL, msg.ID, msg.ClientID, msg.Sender, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", mapPgErr(err))
	}
	return nil
}
