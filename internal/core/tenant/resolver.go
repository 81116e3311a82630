package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrNoActiveChatbot  = errors.New("no active chatbot")
	ErrMissingReference = errors.New("event carries no instance reference")
)

// Context is the organization, device and chatbot an event belongs to.
type Context struct {
	Organization *models.Organization
	Device       *models.Device
	Chatbot      *models.Chatbot
}

// Lookup is what the gateway tells us about the receiving instance.
type Lookup struct {
	InstanceID string
	Instance   string
}

type DeviceLookup interface {
	FindByInstanceID(ctx context.Context, instanceID string) (*models.Device, error)
	FindBySessionName(ctx context.Context, sessionName string) (*models.Device, error)
}

type OrganizationLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

type ChatbotLookup interface {
	// FindActive returns the active chatbot of the organization with its
	// intents, preferring one bound to deviceID.
	FindActive(ctx context.Context, organizationID uuid.UUID, deviceID *uuid.UUID) (*models.Chatbot, error)
}

// Resolver maps gateway instances to tenants.
type Resolver struct {
	devices  DeviceLookup
	orgs     OrganizationLookup
	chatbots ChatbotLookup
	log      zerolog.Logger
}

func NewResolver(devices DeviceLookup, orgs OrganizationLookup, chatbots ChatbotLookup, logger zerolog.Logger) *Resolver {
	return &Resolver{
		devices:  devices,
		orgs:     orgs,
		chatbots: chatbots,
		log:      logger.With().Str("component", "tenant_resolver").Logger(),
	}
}

// Resolve finds the device by exact instance match, then by derived session
// name, then falls back to a virtual device when the instance suffix names
// an active organization.
func (r *Resolver) Resolve(ctx context.Context, in Lookup) (*Context, error) {
	candidates := nonEmpty(in.InstanceID, in.Instance)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrTenantNotFound, ErrMissingReference)
	}

	device, err := r.findDevice(ctx, candidates)
	if err != nil {
		return nil, err
	}

	org, err := r.orgs.FindByID(ctx, device.OrganizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: organization %s", ErrTenantNotFound, device.OrganizationID)
		}
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if !org.IsActive() {
		return nil, fmt.Errorf("%w: organization %s is %s", ErrTenantNotFound, org.ID, org.Status)
	}

	bot, err := r.chatbots.FindActive(ctx, org.ID, device.RefID())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: organization %s", ErrNoActiveChatbot, org.ID)
		}
		return nil, fmt.Errorf("load chatbot: %w", err)
	}

	return &Context{Organization: org, Device: device, Chatbot: bot}, nil
}

func (r *Resolver) findDevice(ctx context.Context, candidates []string) (*models.Device, error) {
	for _, ref := range candidates {
		device, err := r.devices.FindByInstanceID(ctx, ref)
		if err == nil {
			return device, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find device by instance: %w", err)
		}
	}

	for _, ref := range candidates {
		session, suffix := SplitInstance(ref)
		if session == "" {
			continue
		}

		device, err := r.devices.FindBySessionName(ctx, session)
		if err == nil {
			return device, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find device by session: %w", err)
		}

		if suffix == uuid.Nil {
			continue
		}
		org, err := r.orgs.FindByID(ctx, suffix)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, fmt.Errorf("load organization: %w", err)
		}
		if !org.IsActive() {
			continue
		}

		r.log.Warn().
			Str("instance", ref).
			Str("session_name", session).
			Str("organization_id", org.ID.String()).
			Msg("⚠️ No device row for instance, continuing with virtual device")
		return &models.Device{
			OrganizationID: org.ID,
			SessionName:    session,
			InstanceID:     ref,
			State:          models.DeviceConnected,
			Virtual:        true,
		}, nil
	}

	return nil, fmt.Errorf("%w: instance %s", ErrTenantNotFound, strings.Join(candidates, "/"))
}

var uuidSuffix = regexp.MustCompile(`^(.*?)[-_]([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})$`)

// SplitInstance strips a trailing "-<uuid>" or "_<uuid>" from an instance
// name. Without such a suffix the name is returned as is with uuid.Nil.
func SplitInstance(instance string) (string, uuid.UUID) {
	instance = strings.TrimSpace(instance)
	m := uuidSuffix.FindStringSubmatch(instance)
	if m == nil {
		return instance, uuid.Nil
	}
	id, err := uuid.Parse(m[2])
	if err != nil {
		return instance, uuid.Nil
	}
	return m[1], id
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	seen := map[string]bool{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
