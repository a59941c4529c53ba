package objects

import (
	"github.com/miekg/pkcs11"
)

// A CryptoObject is a certificate, key or trust record exposed by a token.
type CryptoObject struct {
	Handle     uint
	Class      uint
	Attributes Attributes
	// Identity is the identity the object was derived from. Objects of the
	// certificate space have none and cannot be used as keys.
	Identity *Identity
}

// CryptoObjects is an object list. The handle of the object at index i is i+1.
type CryptoObjects []*CryptoObject

func (objects *CryptoObjects) add(class uint) *CryptoObject {
	object := &CryptoObject{
		Handle: uint(len(*objects) + 1),
		Class:  class,
	}
	object.Attributes.Set(pkcs11.CKA_CLASS, class)
	*objects = append(*objects, object)
	return object
}

// Get returns the object with the given handle.
func (objects CryptoObjects) Get(handle uint) (*CryptoObject, error) {
	if handle == 0 || handle > uint(len(objects)) {
		return nil, NewError("CryptoObjects.Get", "object handle invalid", pkcs11.CKR_OBJECT_HANDLE_INVALID)
	}
	return objects[handle-1], nil
}

// Equals returns true if the lists hold equal objects with equal handles.
func (objects CryptoObjects) Equals(objects2 CryptoObjects) bool {
	if len(objects) != len(objects2) {
		return false
	}
	for i, object := range objects {
		if !object.Equals(objects2[i]) {
			return false
		}
	}
	return true
}

// Equals returns true if the crypto_objects are equal.
func (object *CryptoObject) Equals(object2 *CryptoObject) bool {
	return object.Handle == object2.Handle &&
		object.Class == object2.Class &&
		object.Attributes.Equals(object2.Attributes)
}

// Match returns true if the object satisfies the search template.
func (object *CryptoObject) Match(template []*pkcs11.Attribute) bool {
	return object.Attributes.Match(template)
}
