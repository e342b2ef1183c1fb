package access

import (
	"errors"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/models"
)

// ErrForbidden carries no detail about the order on purpose.
var ErrForbidden = errors.New("Unauthorized access to this order")

// CanView decides read access to an order. guestEmail is the address the caller
// supplied alongside the request, if any.
func CanView(actor auth.Actor, order *models.Order, guestEmail string) error {
	switch actor.Kind() {
	case auth.KindAdmin, auth.KindPersonnel:
		return nil

	case auth.KindCustomer:
		id, _ := actor.CustomerID()
		if order.BelongsToCustomer(id) {
			return nil
		}
		// a signed-in shopper may still open a guest order placed with their address
		return guestAccess(order, guestEmail)

	case auth.KindGuest:
		return guestAccess(order, guestEmail)
	}
	return ErrForbidden
}

func guestAccess(order *models.Order, guestEmail string) error {
	if order.IsGuestOrder() && order.BelongsToGuest(guestEmail) {
		return nil
	}
	return ErrForbidden
}

// CanUpdateStatus is limited to staff.
func CanUpdateStatus(actor auth.Actor) error {
	if actor.IsStaff() {
		return nil
	}
	return ErrForbidden
}
