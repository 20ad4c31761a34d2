package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/aishacrm/orchestrator-core/internal/tenant"
)

// Binding is the resolved tenant for one channel-native workspace, guild,
// or chat. It answers "which tenant does this external ID belong to?";
// the core's internal conversation ID is a separate, finer-grained
// concern (typically the inbound message's own thread/session key) that
// the caller derives independently and is not part of this mapping.
type Binding struct {
	TenantUUID string
	Channel    ChatChannelID
	ExternalID string
}

// BindingStore resolves a channel-native external ID (a Slack workspace
// ID, a Discord guild ID, a Telegram chat ID) to its tenant. Resolution
// fails closed: an external ID with no configured mapping is never
// defaulted to a guessed tenant, it returns an error.
type BindingStore interface {
	Resolve(ctx context.Context, channel ChatChannelID, externalID string) (Binding, error)
}

// StaticBindingStore resolves against a fixed, config-loaded mapping of
// external ID to tenant identifier (slug or UUID), one map per channel.
// This is the production shape for a small number of installed
// workspaces/guilds/bots configured by an operator; a dynamic OAuth
// install flow that writes these mappings at install time is future work
// (see DESIGN.md's A4 entry).
type StaticBindingStore struct {
	tenants  tenant.Resolver
	mappings map[ChatChannelID]map[string]string // externalID -> tenant identifier
}

// NewStaticBindingStore builds a store from a per-channel external-ID to
// tenant-identifier mapping, resolved against tenants on each lookup.
func NewStaticBindingStore(tenants tenant.Resolver, mappings map[ChatChannelID]map[string]string) *StaticBindingStore {
	if mappings == nil {
		mappings = map[ChatChannelID]map[string]string{}
	}
	return &StaticBindingStore{tenants: tenants, mappings: mappings}
}

// Resolve implements BindingStore.
func (s *StaticBindingStore) Resolve(ctx context.Context, channel ChatChannelID, externalID string) (Binding, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Binding{}, fmt.Errorf("channels: empty external ID for channel %s", channel)
	}

	byExternal, ok := s.mappings[channel]
	if !ok {
		return Binding{}, fmt.Errorf("channels: no tenant mapping configured for channel %s", channel)
	}
	identifier, ok := byExternal[externalID]
	if !ok {
		return Binding{}, fmt.Errorf("channels: external ID %q is not mapped to a tenant on channel %s", externalID, channel)
	}

	t, err := s.tenants.Resolve(ctx, identifier)
	if err != nil {
		return Binding{}, fmt.Errorf("channels: resolve tenant for %s/%s: %w", channel, externalID, err)
	}

	return Binding{TenantUUID: t.UUID, Channel: channel, ExternalID: externalID}, nil
}
