// Package sessionmgr is the tenant-keyed session lifecycle (C6):
// provisioning a village's provider session, reconciling connection
// status, and the admin-only duplicate-number resolution path.
package sessionmgr

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Abraxas-365/craftable/logx"

	"github.com/mygads/govconnect-channelgateway/pkg/config"
	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/provider"
	"github.com/mygads/govconnect-channelgateway/store"
)

// Manager implements spec.md §4.6's operations, grounded on
// channelmanager.DefaultChannelManager's per-tenant registration shape
// (there: one adapter per channel; here: one provider session per village).
type Manager struct {
	store         store.Store
	provider      *provider.Client
	cache         *TokenCache
	cfg           config.ProviderConfig
	publicBaseURL string
}

func NewManager(st store.Store, pc *provider.Client, cache *TokenCache, cfg config.ProviderConfig, publicBaseURL string) *Manager {
	return &Manager{store: st, provider: pc, cache: cache, cfg: cfg, publicBaseURL: publicBaseURL}
}

// Create provisions (or re-provisions) a village's provider session.
func (m *Manager) Create(ctx context.Context, villageID kernel.VillageID, adminID, slug string) (*store.Session, error) {
	existing, err := m.store.GetSession(ctx, villageID)
	hasExisting := err == nil

	if hasExisting && !existing.SupportUserID.Valid {
		logx.Info("sessionmgr: village %s has a legacy session, logging out and deleting before re-create", villageID)
		_ = m.provider.Logout(ctx, villageID)
		_ = m.store.DeleteSession(ctx, villageID)
		hasExisting = false
	}

	provisionResult := m.provider.ProvisionUser(ctx, villageID)
	if !provisionResult.OK {
		return nil, ErrProvisionFailed(provisionResult.Err)
	}

	apiKey := provisionResult.Data.APIKey
	if apiKey == "" {
		rotateResult := m.provider.RotateAPIKey(ctx, provisionResult.Data.UserID)
		if !rotateResult.OK {
			return nil, ErrProvisionFailed(rotateResult.Err)
		}
		apiKey = rotateResult.Data
	}

	instanceName := slug
	if instanceName == "" {
		instanceName = villageID.String()
	}

	createResult := m.provider.CreateSession(ctx, provider.CreateSessionParams{
		InstanceName:    instanceName,
		WebhookURL:      strings.TrimRight(m.publicBaseURL, "/") + "/webhook",
		AutoReadEnabled: true,
		TypingEnabled:   true,
		Events:          "All",
	})
	if !createResult.OK {
		return nil, ErrProvisionFailed(createResult.Err)
	}

	session := &store.Session{
		VillageID:        villageID,
		InstanceName:     sql.NullString{String: instanceName, Valid: true},
		AdminID:          sql.NullString{String: adminID, Valid: adminID != ""},
		ProviderToken:    sql.NullString{String: createResult.Data.Token, Valid: true},
		Status:           sql.NullString{String: store.SessionStatusDisconnected, Valid: true},
		SupportUserID:    sql.NullString{String: provisionResult.Data.UserID, Valid: true},
		SupportAPIKey:    sql.NullString{String: apiKey, Valid: true},
		SupportSessionID: sql.NullString{String: createResult.Data.SupportSessionID, Valid: true},
	}
	if err := m.store.UpsertSession(ctx, session); err != nil {
		return nil, err
	}

	if m.cache != nil {
		_ = m.cache.SetProviderToken(ctx, villageID, createResult.Data.Token)
		_ = m.cache.CacheAPIKeyHash(ctx, villageID, apiKey)
	}

	return session, nil
}

// Status fetches live provider status and reconciles wa_number into both
// the session and channel-account rows. If the reconciled number is already
// connected on a different village, the connection is refused: this village
// is forced back to disconnected and ErrDuplicateNumber is returned instead
// of silently taking over the number.
func (m *Manager) Status(ctx context.Context, villageID kernel.VillageID) (*store.Session, error) {
	session, err := m.store.GetSession(ctx, villageID)
	if err != nil {
		return nil, ErrSessionNotFound(villageID.String())
	}

	result := m.provider.Status(ctx, villageID)
	if !result.OK {
		return session, ErrProvisionFailed(result.Err)
	}

	waNumber := strings.TrimSuffix(result.Data.JID, "@s.whatsapp.net")
	status := store.SessionStatusDisconnected
	if result.Data.Connected {
		status = store.SessionStatusConnected
	}

	if status == store.SessionStatusConnected && waNumber != "" {
		if conflictVillage, found, err := m.CheckDuplicate(ctx, villageID, waNumber); err == nil && found {
			logx.Error("sessionmgr: wa_number %s already connected on village %s, refusing to connect village %s", waNumber, conflictVillage, villageID)
			if discResult := m.provider.Disconnect(ctx, villageID); !discResult.OK {
				logx.Error("sessionmgr: best-effort disconnect after duplicate-number conflict failed for %s: %v", villageID, discResult.Err)
			}

			session.WANumber = sql.NullString{String: waNumber, Valid: true}
			session.Status = sql.NullString{String: store.SessionStatusDisconnected, Valid: true}
			_ = m.store.UpsertSession(ctx, session)

			return session, ErrDuplicateNumber(conflictVillage.String(), waNumber)
		}
	}

	session.WANumber = sql.NullString{String: waNumber, Valid: waNumber != ""}
	session.Status = sql.NullString{String: status, Valid: true}
	if err := m.store.UpsertSession(ctx, session); err != nil {
		return session, err
	}

	if ca, err := m.store.GetChannelAccount(ctx, villageID); err == nil {
		ca.WANumber = sql.NullString{String: waNumber, Valid: waNumber != ""}
		_ = m.store.UpsertChannelAccount(ctx, ca)
	}

	return session, nil
}

// Connect opens the provider-side connection and reconciles status. Unlike
// Disconnect/Logout, a failure from the status reconcile is surfaced rather
// than swallowed: that reconcile is where a duplicate wa_number conflict is
// detected, and the invariant (spec.md §4.6) requires the connect path to
// refuse to proceed in that case rather than silently hijack the number.
func (m *Manager) Connect(ctx context.Context, villageID kernel.VillageID) error {
	result := m.provider.Connect(ctx, villageID)
	if !result.OK {
		return ErrProvisionFailed(result.Err)
	}
	if _, err := m.Status(ctx, villageID); err != nil {
		return err
	}
	return nil
}

func (m *Manager) Disconnect(ctx context.Context, villageID kernel.VillageID) error {
	result := m.provider.Disconnect(ctx, villageID)
	if !result.OK {
		return ErrProvisionFailed(result.Err)
	}
	_, _ = m.Status(ctx, villageID)
	return nil
}

func (m *Manager) Logout(ctx context.Context, villageID kernel.VillageID) error {
	result := m.provider.Logout(ctx, villageID)
	if !result.OK {
		return ErrProvisionFailed(result.Err)
	}
	_, _ = m.Status(ctx, villageID)
	return nil
}

// Delete tears a village's session down: best-effort upstream logout and
// support-session delete, then the local row, then disables the channel
// account.
func (m *Manager) Delete(ctx context.Context, villageID kernel.VillageID) error {
	if result := m.provider.Logout(ctx, villageID); !result.OK {
		logx.Error("sessionmgr: best-effort logout failed for %s: %v", villageID, result.Err)
	}

	session, err := m.store.GetSession(ctx, villageID)
	if err == nil && session.SupportSessionID.Valid {
		if result := m.provider.DeleteSupportSession(ctx, session.SupportSessionID.String); !result.OK {
			logx.Error("sessionmgr: best-effort support-session delete failed for %s: %v", villageID, result.Err)
		}
	}

	if err := m.store.DeleteSession(ctx, villageID); err != nil {
		return err
	}

	if ca, err := m.store.GetChannelAccount(ctx, villageID); err == nil {
		ca.EnabledWA = false
		_ = m.store.UpsertChannelAccount(ctx, ca)
	}

	if m.cache != nil {
		_ = m.cache.InvalidateProviderToken(ctx, villageID)
	}

	return nil
}

// CheckDuplicate finds a different village with the same wa_number
// already connected.
func (m *Manager) CheckDuplicate(ctx context.Context, villageID kernel.VillageID, waNumber string) (kernel.VillageID, bool, error) {
	session, err := m.store.FindConnectedSessionByNumber(ctx, waNumber)
	if err != nil {
		return "", false, nil
	}
	if session.VillageID == villageID {
		return "", false, nil
	}
	return session.VillageID, true, nil
}

// ForceDisconnectOther is an explicit admin action only — never called
// implicitly from Create or Connect.
func (m *Manager) ForceDisconnectOther(ctx context.Context, currentVillage, targetVillage kernel.VillageID) error {
	target, err := m.store.GetSession(ctx, targetVillage)
	if err != nil {
		return ErrSessionNotFound(targetVillage.String())
	}

	if result := m.provider.Disconnect(ctx, targetVillage); !result.OK {
		logx.Error("sessionmgr: force-disconnect of %s (requested by %s) failed: %v", targetVillage, currentVillage, result.Err)
	}

	target.Status = sql.NullString{String: store.SessionStatusDisconnected, Valid: true}
	return m.store.UpsertSession(ctx, target)
}
