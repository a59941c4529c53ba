package objects

import (
	"bytes"

	"github.com/miekg/pkcs11"
)

// UnavailableInformation is the length reported for attributes the object
// does not have.
const UnavailableInformation = ^uint(0)

// An attribute related to a crypto object. A nil Value is an attribute
// without content, which is different from an empty one.
type Attribute struct {
	Type  uint
	Value []byte
}

// Attributes is the ordered attribute set of a crypto object. Types are not
// deduplicated, so builders must not add the same type twice.
type Attributes []*Attribute

// Request is one entry of an attribute read. A nil Buffer asks only for the
// length of the attribute.
type Request struct {
	Type   uint
	Buffer []byte
	Length uint
}

// Store appends an attribute with a raw value.
func (attributes *Attributes) Store(attrType uint, value []byte) {
	*attributes = append(*attributes, &Attribute{Type: attrType, Value: value})
}

// Set appends an attribute, encoding x the same way the caller side of the
// API does (CK_BBOOL for bool, CK_ULONG for uint).
func (attributes *Attributes) Set(attrType uint, x interface{}) {
	attr := pkcs11.NewAttribute(attrType, x)
	attributes.Store(attr.Type, attr.Value)
}

// Find returns the first attribute of the given type, or nil.
func (attributes Attributes) Find(attrType uint) *Attribute {
	for _, attr := range attributes {
		if attr.Type == attrType {
			return attr
		}
	}
	return nil
}

func (attributes Attributes) findSized(attrType uint, length int) *Attribute {
	for _, attr := range attributes {
		if attr.Type == attrType && len(attr.Value) == length {
			return attr
		}
	}
	return nil
}

// Retrieve fills every request of the template. All the entries are
// processed even if some of them fail; the error returned is the one of the
// first failed entry.
func (attributes Attributes) Retrieve(template []*Request) error {
	var rv error
	fail := func(err error) {
		if rv == nil {
			rv = err
		}
	}
	for _, req := range template {
		attr := attributes.Find(req.Type)
		switch {
		case attr == nil:
			req.Length = UnavailableInformation
			fail(NewError("Attributes.Retrieve", "attribute type invalid", pkcs11.CKR_ATTRIBUTE_TYPE_INVALID))
		case req.Buffer == nil:
			req.Length = uint(len(attr.Value))
		case len(req.Buffer) < len(attr.Value):
			req.Length = uint(len(attr.Value))
			fail(NewError("Attributes.Retrieve", "buffer too small", pkcs11.CKR_BUFFER_TOO_SMALL))
		default:
			copy(req.Buffer, attr.Value)
			req.Length = uint(len(attr.Value))
		}
	}
	return rv
}

// Match returns true if every attribute in the template is present with the
// same length and content. An empty template matches every object.
func (attributes Attributes) Match(template []*pkcs11.Attribute) bool {
	for _, want := range template {
		attr := attributes.findSized(want.Type, len(want.Value))
		if attr == nil {
			return false
		}
		if (attr.Value == nil) != (want.Value == nil) {
			return false
		}
		if !bytes.Equal(attr.Value, want.Value) {
			return false
		}
	}
	return true
}

// Equals returns true if both sets hold the same attributes in the same order.
func (attributes Attributes) Equals(attributes2 Attributes) bool {
	if len(attributes) != len(attributes2) {
		return false
	}
	for i, attribute := range attributes {
		if !attribute.Equals(attributes2[i]) {
			return false
		}
	}
	return true
}

// Equals returns true if the attributes are equal.
func (attribute *Attribute) Equals(attribute2 *Attribute) bool {
	return attribute.Type == attribute2.Type &&
		(attribute.Value == nil) == (attribute2.Value == nil) &&
		bytes.Equal(attribute.Value, attribute2.Value)
}
