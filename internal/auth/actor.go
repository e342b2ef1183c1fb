package auth

import "fmt"

type ActorKind int

const (
	KindGuest ActorKind = iota
	KindCustomer
	KindPersonnel
	KindAdmin
)

func (k ActorKind) String() string {
	switch k {
	case KindCustomer:
		return "customer"
	case KindPersonnel:
		return "personnel"
	case KindAdmin:
		return "admin"
	default:
		return "guest"
	}
}

// Actor is the resolved caller. The zero value is a guest; other values only come
// from the constructors below.
type Actor struct {
	kind ActorKind
	id   int64
}

func Guest() Actor { return Actor{kind: KindGuest} }
func Customer(id int64) Actor { return Actor{kind: KindCustomer, id: id} }
func Personnel(id int64) Actor { return Actor{kind: KindPersonnel, id: id} }
func Admin(id int64) Actor { return Actor{kind: KindAdmin, id: id} }
func (a Actor) Kind() ActorKind { return a.kind }
func (a Actor) ID() int64 { return a.id }
func (a Actor) IsGuest() bool { return a.kind == KindGuest }
func (a Actor) IsStaff() bool { return a.kind == KindAdmin || a.kind == KindPersonnel }
func (a Actor) IsCustomer() bool { return a.kind == KindCustomer }
func (a Actor) String() string { return fmt.Sprintf("%s(%d)", a.kind, a.id) }

// CustomerID returns the id when the actor is a customer.
func (a Actor) CustomerID() (int64, bool) {
	if a.kind == KindCustomer {
		return a.id, true
	}
	return 0, false
}
