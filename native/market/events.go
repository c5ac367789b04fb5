package market

import (
	"encoding/hex"
	"strconv"

	"autonledger/core/events"
	"autonledger/core/types"
)

const (
	// EventTypeConfigUpdated is emitted when the protocol config is created or
	// changed.
	EventTypeConfigUpdated = "market.config.updated"
	// EventTypeUsernameRegistered is emitted when a username is claimed.
	EventTypeUsernameRegistered = "market.username.registered"
	// EventTypeCreatorInitialized is emitted when a creator account is created.
	EventTypeCreatorInitialized = "market.creator.initialized"
	// EventTypeContentPublished is emitted when a creator lists new content.
	EventTypeContentPublished = "market.content.published"
	// EventTypeProfileUpdated is emitted when a creator replaces their profile.
	EventTypeProfileUpdated = "market.profile.updated"
	// EventTypeContentPurchased is emitted when a payment settles.
	EventTypeContentPurchased = "market.content.purchased"
	// EventTypeStorageCharged is emitted when record growth is charged to a
	// payer.
	EventTypeStorageCharged = "market.storage.charged"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// ConfigUpdatedEvent reports the effective admin and fee rate.
func ConfigUpdatedEvent(admin string, feeRateBps uint32) *types.Event {
	return &types.Event{
		Type: EventTypeConfigUpdated,
		Attributes: map[string]string{
			"admin":      admin,
			"feeRateBps": strconv.FormatUint(uint64(feeRateBps), 10),
		},
	}
}

// UsernameRegisteredEvent reports a successful username claim.
func UsernameRegisteredEvent(username string, owner string) *types.Event {
	return &types.Event{
		Type: EventTypeUsernameRegistered,
		Attributes: map[string]string{
			"username": username,
			"owner":    owner,
		},
	}
}

// CreatorInitializedEvent reports a new creator account.
func CreatorInitializedEvent(owner string) *types.Event {
	return &types.Event{
		Type: EventTypeCreatorInitialized,
		Attributes: map[string]string{
			"owner": owner,
		},
	}
}

// ContentPublishedEvent reports a new catalogue entry.
func ContentPublishedEvent(creator string, id uint64, title string, price string) *types.Event {
	return &types.Event{
		Type: EventTypeContentPublished,
		Attributes: map[string]string{
			"creator":   creator,
			"contentId": strconv.FormatUint(id, 10),
			"title":     title,
			"price":     price,
		},
	}
}

// ProfileUpdatedEvent reports a profile locator replacement.
func ProfileUpdatedEvent(creator string, profile string) *types.Event {
	return &types.Event{
		Type: EventTypeProfileUpdated,
		Attributes: map[string]string{
			"creator": creator,
			"profile": profile,
		},
	}
}

// ContentPurchasedEvent reports a settled payment and its fee split.
func ContentPurchasedEvent(buyer string, creator string, contentID uint64, total string, fee string) *types.Event {
	return &types.Event{
		Type: EventTypeContentPurchased,
		Attributes: map[string]string{
			"buyer":     buyer,
			"creator":   creator,
			"contentId": strconv.FormatUint(contentID, 10),
			"total":     total,
			"fee":       fee,
		},
	}
}

// StorageChargedEvent reports rent settled for record growth.
func StorageChargedEvent(payer string, growth uint64, cost string) *types.Event {
	return &types.Event{
		Type: EventTypeStorageCharged,
		Attributes: map[string]string{
			"payer":  payer,
			"growth": strconv.FormatUint(growth, 10),
			"cost":   cost,
		},
	}
}
