package access

import (
	"testing"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/models"

	"github.com/stretchr/testify/assert"
)

func customerOrder(customerID int64) *models.Order {
	return &models.Order{OrderNumber: "ORD-20260101-0001", CustomerID: &customerID}
}

func guestOrder(email string) *models.Order {
	return &models.Order{OrderNumber: "ORD-20260101-0002", GuestEmail: &email}
}

func TestCanView(t *testing.T) {
	tests := []struct {
		name       string
		actor      auth.Actor
		order      *models.Order
		guestEmail string
		allowed    bool
	}{
		{"admin sees customer order", auth.Admin(1), customerOrder(10), "", true},
		{"personnel sees guest order", auth.Personnel(2), guestOrder("g@example.com"), "", true},
		{"customer sees own order", auth.Customer(10), customerOrder(10), "", true},
		{"customer blocked from other customer", auth.Customer(11), customerOrder(10), "", false},
		{"customer blocked from guest order without email", auth.Customer(11), guestOrder("g@example.com"), "", false},
		{"customer with matching guest email", auth.Customer(11), guestOrder("g@example.com"), "G@example.com", true},
		{"guest with matching email", auth.Guest(), guestOrder("g@example.com"), "g@EXAMPLE.com", true},
		{"guest with wrong email", auth.Guest(), guestOrder("g@example.com"), "x@example.com", false},
		{"guest without email", auth.Guest(), guestOrder("g@example.com"), "", false},
		{"guest cannot open customer order", auth.Guest(), customerOrder(10), "g@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanView(tt.actor, tt.order, tt.guestEmail)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestCanUpdateStatus(t *testing.T) {
	assert.NoError(t, CanUpdateStatus(auth.Admin(1)))
	assert.NoError(t, CanUpdateStatus(auth.Personnel(1)))
	assert.ErrorIs(t, CanUpdateStatus(auth.Customer(1)), ErrForbidden)
	assert.ErrorIs(t, CanUpdateStatus(auth.Guest()), ErrForbidden)
}
