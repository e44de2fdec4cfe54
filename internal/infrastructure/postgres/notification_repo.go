package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cronbox/cronbox-core/internal/domain"
)

type NotificationSettingsRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewNotificationSettingsRepository(pool *pgxpool.Pool, logger *slog.Logger) *NotificationSettingsRepository {
	return &NotificationSettingsRepository{pool: pool, logger: logger.With("component", "notification_settings_repo")}
}

func (r *NotificationSettingsRepository) GetByWorkspaceID(ctx context.Context, workspaceID string) (*domain.NotificationSettings, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT workspace_id, telegram_enabled, telegram_chat_ids,
		       email_enabled, email_addresses,
		       webhook_enabled, webhook_url, webhook_secret, language
		FROM notification_settings WHERE workspace_id = $1`, workspaceID)

	var s domain.NotificationSettings
	err := row.Scan(
		&s.WorkspaceID, &s.TelegramEnabled, &s.TelegramChatIDs,
		&s.EmailEnabled, &s.EmailAddresses,
		&s.WebhookEnabled, &s.WebhookURL, &s.WebhookSecret, &s.Language,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("scan notification settings: %w", err)
	}
	return &s, nil
}
