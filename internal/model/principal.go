package model

// PrincipalKind — тип участника чата: покупатель или сотрудник поддержки.
type PrincipalKind string

const (
	KindCustomer PrincipalKind = "customer"
	KindStaff    PrincipalKind = "staff"
)

// Opposite returns the counterpart kind in a support conversation.
func (k PrincipalKind) Opposite() PrincipalKind {
	if k == KindStaff {
		return KindCustomer
	}
	return KindStaff
}

func (k PrincipalKind) Valid() bool {
	return k == KindCustomer || k == KindStaff
}

// Principal is an authenticated actor. Identity is fixed for the lifetime of a connection.
type Principal struct {
	ID    int64         `json:"id"`
	Kind  PrincipalKind `json:"kind"`
	Email string        `json:"email"`
	Name  string        `json:"name,omitempty"`
}

func (p Principal) IsStaff() bool { return p.Kind == KindStaff }
