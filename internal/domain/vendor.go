package domain

import "strings"

// Vendor 销售代表（对应 vendors 表）
type Vendor struct {
	VendorID    string `db:"vendor_id" json:"vendor_id"`       // UUID, PRIMARY KEY
	DisplayName string `db:"display_name" json:"display_name"` // VARCHAR(120), NOT NULL
	Role        string `db:"role" json:"role"`                 // 'vendor'/'supervisor'/'admin'
	Active      bool   `db:"active" json:"active"`
}

// VendorRefKind distinguishes id references from name-only references.
type VendorRefKind int

const (
	VendorRefNone VendorRefKind = iota
	VendorRefByID
	VendorRefByName
)

// VendorRef is either ById(id) or ByName(name). Historical rows may carry only
// the display name; those are reconciled against the roster at read time.
type VendorRef struct {
	kind  VendorRefKind
	value string
}

// VendorByID references a vendor by stable id.
func VendorByID(id string) VendorRef {
	return VendorRef{kind: VendorRefByID, value: strings.TrimSpace(id)}
}

// VendorByName references a vendor by display name.
func VendorByName(name string) VendorRef {
	return VendorRef{kind: VendorRefByName, value: strings.TrimSpace(name)}
}

// NewVendorRef prefers the id and falls back to the name.
func NewVendorRef(id, name string) VendorRef {
	if strings.TrimSpace(id) != "" {
		return VendorByID(id)
	}
	if strings.TrimSpace(name) != "" {
		return VendorByName(name)
	}
	return VendorRef{}
}

func (r VendorRef) Kind() VendorRefKind { return r.kind }
func (r VendorRef) Value() string       { return r.value }
func (r VendorRef) IsZero() bool        { return r.kind == VendorRefNone || r.value == "" }

func (r VendorRef) String() string {
	switch r.kind {
	case VendorRefByID:
		return "id:" + r.value
	case VendorRefByName:
		return "name:" + r.value
	default:
		return ""
	}
}

// VendorMatch is a resolved vendor identity used by storage queries: rows match
// on vendor_id = ID, or on vendor_name = Name when the row has no vendor_id.
type VendorMatch struct {
	ID   string
	Name string
}

// Key is the natural-key form stored as vendor_key on visits and routes.
func (m VendorMatch) Key() string {
	return VendorKey(m.ID, m.Name)
}

// Label is the human label used in generated route names.
func (m VendorMatch) Label() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// VendorKey mirrors the vendor_key generated column:
// COALESCE(vendor_id, 'name:' || upper(vendor_name)).
func VendorKey(id, name string) string {
	if id != "" {
		return id
	}
	return "name:" + strings.ToUpper(strings.TrimSpace(name))
}
