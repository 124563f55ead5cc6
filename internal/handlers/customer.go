package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	billieerrors "github.com/billie/servicing-projector/pkg/errors"
	"github.com/billie/servicing-projector/internal/events"
	"github.com/billie/servicing-projector/internal/projection"
)

func RegisterCustomerHandlers(r *Registry) {
	r.Register("customer.changed.v1", HandlerFunc(handleCustomerChanged))
	r.Register("customer.created.v1", HandlerFunc(handleCustomerChanged))
	r.Register("customer.updated.v1", HandlerFunc(handleCustomerChanged))
	r.Register("customer.verified.v1", HandlerFunc(handleCustomerVerified))
}

// handleCustomerChanged implements §4.4.1: upsert by customerId, overwrite
// recognised fields only when the payload value is present, recompute
// fullName falling back to the stored value for a missing name part.
func handleCustomerChanged(ctx context.Context, store projection.Store, event interface{}) error {
	parsed, ok := event.(*events.ParsedEvent)
	if !ok {
		return billieerrors.MalformedEnvelope("customer handler expects a parsed event, got %T", event)
	}
	payload, ok := parsed.Payload.(*events.CustomerPayload)
	if !ok || payload.CustomerID == "" {
		return billieerrors.MalformedEnvelope("customer event missing customer payload")
	}

	existing, err := store.FindCustomer(ctx, payload.CustomerID)
	if err != nil {
		return billieerrors.Transient("lookup existing customer: %v", err)
	}

	first := derefOr(payload.FirstName, "")
	last := derefOr(payload.LastName, "")
	if first == "" && existing != nil {
		first = existing.FirstName
	}
	if last == "" && existing != nil {
		last = existing.LastName
	}
	fullName := strings.TrimSpace(fmt.Sprintf("%s %s", first, last))

	set := map[string]interface{}{
		"customerId": payload.CustomerID,
		"fullName":   fullName,
		"updatedAt":  time.Now().UTC(),
	}
	if payload.FirstName != nil {
		set["firstName"] = *payload.FirstName
	}
	if payload.LastName != nil {
		set["lastName"] = *payload.LastName
	}
	if payload.EmailAddress != nil {
		set["emailAddress"] = *payload.EmailAddress
	}
	if payload.MobilePhoneNumber != nil {
		set["mobilePhoneNumber"] = *payload.MobilePhoneNumber
	}
	if payload.DateOfBirth != nil {
		set["dateOfBirth"] = *payload.DateOfBirth
	}
	if payload.EkycStatus != nil {
		set["ekycStatus"] = *payload.EkycStatus
	}
	if payload.ResidentialAddress != nil {
		set["residentialAddress"] = buildResidentialAddress(payload.ResidentialAddress)
	}

	if err := store.UpsertCustomer(ctx, payload.CustomerID, set); err != nil {
		return billieerrors.Transient("upsert customer: %v", err)
	}
	return nil
}

// buildResidentialAddress maps the typed address payload into the stored
// shape, including the two derived back-compat fields: a single-line
// street assembled from unit/number/name/type, and city mirroring suburb.
func buildResidentialAddress(addr *events.ResidentialAddressPayload) map[string]interface{} {
	return map[string]interface{}{
		"streetNumber": derefOr(addr.StreetNumber, ""),
		"streetName":   derefOr(addr.StreetName, ""),
		"streetType":   derefOr(addr.StreetType, ""),
		"unitNumber":   derefOr(addr.UnitNumber, ""),
		"suburb":       derefOr(addr.Suburb, ""),
		"state":        derefOr(addr.State, ""),
		"postcode":     derefOr(addr.Postcode, ""),
		"country":      derefOr(addr.Country, "Australia"),
		"fullAddress":  derefOr(addr.FullAddress, ""),
		"street":       buildStreetLine(addr),
		"city":         derefOr(addr.Suburb, ""),
	}
}

func buildStreetLine(addr *events.ResidentialAddressPayload) string {
	var parts []string
	if unit := derefOr(addr.UnitNumber, ""); unit != "" {
		parts = append(parts, "Unit "+unit)
	}
	streetNum := derefOr(addr.StreetNumber, "")
	if streetNum != "" {
		line := streetNum
		if name := derefOr(addr.StreetName, ""); name != "" {
			line += " " + name
		}
		if typ := derefOr(addr.StreetType, ""); typ != "" {
			line += " " + typ
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, ", ")
}

// handleCustomerVerified implements §4.4.2.
func handleCustomerVerified(ctx context.Context, store projection.Store, event interface{}) error {
	parsed, ok := event.(*events.ParsedEvent)
	if !ok {
		return billieerrors.MalformedEnvelope("customer.verified handler expects a parsed event, got %T", event)
	}
	payload, ok := parsed.Payload.(*events.CustomerPayload)
	if !ok || payload.CustomerID == "" {
		return billieerrors.MalformedEnvelope("customer.verified event missing customer id")
	}

	set := map[string]interface{}{
		"identityVerified": true,
		"ekycStatus":       "successful",
		"updatedAt":        time.Now().UTC(),
	}
	if err := store.UpdateCustomer(ctx, payload.CustomerID, set); err != nil {
		return billieerrors.Transient("mark customer verified: %v", err)
	}
	return nil
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
