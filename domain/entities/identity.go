package entities

// Identity is whoever is looking at or acting on a bet. Either field may be
// empty; a match on either identifies the party.
type Identity struct {
	Address string `json:"address,omitempty"`
	FID     *int64 `json:"fid,omitempty"`
}

// IsAnonymous reports whether the identity carries neither an address nor a fid
func (i Identity) IsAnonymous() bool {
	return IsZeroAddress(i.Address) && i.FID == nil
}

// Role is a viewer's relationship to a bet
type Role string

const (
	RoleMaker     Role = "maker"
	RoleTaker     Role = "taker"
	RoleArbiter   Role = "arbiter"
	RoleSpectator Role = "spectator"
)

// Roles is the set of roles a single identity holds on a bet. An identity
// can hold more than one when the maker also lists themselves as taker.
type Roles struct {
	Maker   bool
	Taker   bool
	Arbiter bool
}

// Has reports whether the set contains role
func (r Roles) Has(role Role) bool {
	switch role {
	case RoleMaker:
		return r.Maker
	case RoleTaker:
		return r.Taker
	case RoleArbiter:
		return r.Arbiter
	case RoleSpectator:
		return r.IsSpectator()
	default:
		return false
	}
}

// IsSpectator reports whether no party role matched
func (r Roles) IsSpectator() bool {
	return !r.Maker && !r.Taker && !r.Arbiter
}

// Primary returns the role used for display, preferring maker, then taker,
// then arbiter
func (r Roles) Primary() Role {
	switch {
	case r.Maker:
		return RoleMaker
	case r.Taker:
		return RoleTaker
	case r.Arbiter:
		return RoleArbiter
	default:
		return RoleSpectator
	}
}

// Profile is the identity service's projection of a social identity
type Profile struct {
	FID            int64  `json:"fid"`
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	PfpURL         string `json:"pfp_url,omitempty"`
	PrimaryAddress string `json:"primary_address,omitempty"`
}
