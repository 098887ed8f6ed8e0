package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/cagp/internal/devicestore"
	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/session"
)

// DeviceHandler serves the per-device storage: saved properties, the
// disclaimer flag and cookie consent.
type DeviceHandler struct {
	devices *devicestore.DB
}

func NewDeviceHandler(devices *devicestore.DB) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

func (h *DeviceHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/saved", h.ListSaved, huma.OperationTags("device"))
	huma.Put(api, "/api/v1/saved/{opa_id}", h.Save, huma.OperationTags("device"))
	huma.Delete(api, "/api/v1/saved/{opa_id}", h.Unsave, huma.OperationTags("device"))
	huma.Get(api, "/api/v1/disclaimer", h.GetDisclaimer, huma.OperationTags("device"))
	huma.Post(api, "/api/v1/disclaimer", h.AcceptDisclaimer, huma.OperationTags("device"))
	huma.Get(api, "/api/v1/consent", h.GetConsent, huma.OperationTags("device"))
	huma.Put(api, "/api/v1/consent", h.PutConsent, huma.OperationTags("device"))
}

type DeviceInput struct {
	Device string `cookie:"cagp_device" doc:"Device id cookie"`
}

type SavedInput struct {
	DeviceInput
	OPAID string `path:"opa_id" doc:"OPA account number" example:"405100505"`
}

type SavedOutput struct {
	Body devicestore.Saved
}

type FlagBody struct {
	Value bool `json:"value" doc:"Flag value"`
}

func (h *DeviceHandler) device(in DeviceInput) (string, error) {
	if h.devices == nil {
		return "", huma.Error503ServiceUnavailable("device storage not available")
	}
	if !session.ValidDeviceID(in.Device) {
		return "", huma.Error400BadRequest("missing or invalid device cookie")
	}
	return in.Device, nil
}

func (h *DeviceHandler) saved(ctx context.Context, device string) (*SavedOutput, error) {
	saved, err := h.devices.SavedProperties(ctx, device)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read saved properties", err)
	}
	return &SavedOutput{Body: saved}, nil
}

func (h *DeviceHandler) ListSaved(ctx context.Context, input *DeviceInput) (*SavedOutput, error) {
	device, err := h.device(*input)
	if err != nil {
		return nil, err
	}
	return h.saved(ctx, device)
}

func (h *DeviceHandler) Save(ctx context.Context, input *SavedInput) (*SavedOutput, error) {
	device, err := h.device(input.DeviceInput)
	if err != nil {
		return nil, err
	}
	if !property.ValidOPAID(input.OPAID) {
		return nil, huma.Error422UnprocessableEntity("invalid OPA id")
	}
	if err := h.devices.SaveProperty(ctx, device, input.OPAID); err != nil {
		return nil, huma.Error500InternalServerError("failed to save property", err)
	}
	return h.saved(ctx, device)
}

func (h *DeviceHandler) Unsave(ctx context.Context, input *SavedInput) (*SavedOutput, error) {
	device, err := h.device(input.DeviceInput)
	if err != nil {
		return nil, err
	}
	if err := h.devices.RemoveProperty(ctx, device, input.OPAID); err != nil {
		return nil, huma.Error500InternalServerError("failed to remove property", err)
	}
	return h.saved(ctx, device)
}

func (h *DeviceHandler) GetDisclaimer(ctx context.Context, input *DeviceInput) (*struct{ Body FlagBody }, error) {
	device, err := h.device(*input)
	if err != nil {
		return nil, err
	}
	seen, err := h.devices.DisclaimerSeen(ctx, device)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read disclaimer flag", err)
	}
	return &struct{ Body FlagBody }{Body: FlagBody{Value: seen}}, nil
}

func (h *DeviceHandler) AcceptDisclaimer(ctx context.Context, input *DeviceInput) (*struct{ Body FlagBody }, error) {
	device, err := h.device(*input)
	if err != nil {
		return nil, err
	}
	if err := h.devices.MarkDisclaimerSeen(ctx, device); err != nil {
		return nil, huma.Error500InternalServerError("failed to store disclaimer flag", err)
	}
	return &struct{ Body FlagBody }{Body: FlagBody{Value: true}}, nil
}

func (h *DeviceHandler) GetConsent(ctx context.Context, input *DeviceInput) (*struct{ Body FlagBody }, error) {
	device, err := h.device(*input)
	if err != nil {
		return nil, err
	}
	ok, err := h.devices.Consent(ctx, device)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read consent", err)
	}
	return &struct{ Body FlagBody }{Body: FlagBody{Value: ok}}, nil
}

func (h *DeviceHandler) PutConsent(ctx context.Context, input *struct {
	DeviceInput
	Body FlagBody
}) (*struct{ Body FlagBody }, error) {
	device, err := h.device(input.DeviceInput)
	if err != nil {
		return nil, err
	}
	if err := h.devices.SetConsent(ctx, device, input.Body.Value); err != nil {
		return nil, huma.Error500InternalServerError("failed to store consent", err)
	}
	return &struct{ Body FlagBody }{Body: input.Body}, nil
}
