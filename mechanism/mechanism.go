// Package mechanism maps the mechanisms callers ask for to backend
// algorithms.
package mechanism

import (
	"encoding/binary"
	"strconv"
	"unsafe"

	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/niclabs/keychain-bridge/objects"
)

// ulongSize is the size of a CK_ULONG and of a pointer in parameter blobs.
const ulongSize = strconv.IntSize / 8

const (
	// CK_RSA_PKCS_OAEP_PARAMS: hashAlg, mgf, source, pSourceData, ulSourceDataLen.
	oaepParamsSize = 5 * ulongSize
	// CK_RSA_PKCS_PSS_PARAMS: hashAlg, mgf, sLen.
	pssParamsSize = 3 * ulongSize
)

// Negotiated is the outcome of a negotiation. Algorithms the mechanism does
// not support are empty.
type Negotiated struct {
	Info       *Info
	Encrypt    backend.Algorithm
	Sign       backend.Algorithm
	DigestSign backend.Algorithm
	Digest     uint
}

// Lookup returns the table row of a mechanism.
func Lookup(mech uint) (*Info, bool) {
	for _, info := range mechanisms {
		if info.Type == mech {
			return info, true
		}
	}
	return nil, false
}

// List returns every supported mechanism in table order.
func List() []uint {
	list := make([]uint, len(mechanisms))
	for i, info := range mechanisms {
		list[i] = info.Type
	}
	return list
}

// Negotiate validates the parameter of a mechanism and returns the backend
// algorithms for it. usage is the CKF_ flag of the requested operation.
func Negotiate(mech uint, param []byte, usage uint) (*Negotiated, error) {
	info, ok := Lookup(mech)
	if !ok || info.Usage&usage == 0 {
		return nil, objects.NewError("mechanism.Negotiate", "mechanism invalid", pkcs11.CKR_MECHANISM_INVALID)
	}
	out := &Negotiated{
		Info:       info,
		Encrypt:    info.Encrypt,
		Sign:       info.Sign,
		DigestSign: info.DigestSign,
		Digest:     info.Digest,
	}
	var row *paramRow
	switch info.Params {
	case ParamNone:
		if len(param) != 0 {
			return nil, paramInvalid("mechanism takes no parameter")
		}
		return out, nil
	case ParamOAEP:
		p, err := DecodeOAEPParams(param)
		if err != nil {
			return nil, err
		}
		if p.SourceType != 0 && p.SourceType != pkcs11.CKZ_DATA_SPECIFIED {
			return nil, paramInvalid("unsupported OAEP source")
		}
		if p.SourceType == pkcs11.CKZ_DATA_SPECIFIED && p.SourceDataLen != 0 {
			return nil, paramInvalid("OAEP source data not supported")
		}
		row = findRow(mech, p.HashAlg, p.MGF, 0, false)
	case ParamPSS:
		p, err := DecodePSSParams(param)
		if err != nil {
			return nil, err
		}
		row = findRow(mech, p.HashAlg, p.MGF, p.SaltLength, true)
	}
	if row == nil {
		return nil, paramInvalid("unsupported parameter combination")
	}
	out.Encrypt = row.encrypt
	out.Sign = row.sign
	out.DigestSign = row.digestSign
	return out, nil
}

func findRow(mech, hash, mgf, saltLen uint, checkSalt bool) *paramRow {
	for i := range paramRows {
		row := &paramRows[i]
		if row.mech == mech && row.hash == hash && row.mgf == mgf &&
			(!checkSalt || row.saltLen == saltLen) {
			return row
		}
	}
	return nil
}

func paramInvalid(description string) error {
	return objects.NewError("mechanism.Negotiate", description, pkcs11.CKR_MECHANISM_PARAM_INVALID)
}

// OAEPParams is a decoded CK_RSA_PKCS_OAEP_PARAMS. The source data stays
// behind its pointer; only the pointer and the length are kept.
type OAEPParams struct {
	HashAlg       uint
	MGF           uint
	SourceType    uint
	SourceData    uintptr
	SourceDataLen uint
}

// PSSParams is a decoded CK_RSA_PKCS_PSS_PARAMS.
type PSSParams struct {
	HashAlg    uint
	MGF        uint
	SaltLength uint
}

// DecodeOAEPParams reads a CK_RSA_PKCS_OAEP_PARAMS blob. A source data
// pointer without a length, or a length without a pointer, is invalid.
func DecodeOAEPParams(param []byte) (*OAEPParams, error) {
	if len(param) != oaepParamsSize {
		return nil, paramInvalid("bad OAEP parameter size")
	}
	words := readWords(param)
	p := &OAEPParams{
		HashAlg:       words[0],
		MGF:           words[1],
		SourceType:    words[2],
		SourceData:    uintptr(words[3]),
		SourceDataLen: words[4],
	}
	if (p.SourceData == 0) != (p.SourceDataLen == 0) {
		return nil, paramInvalid("OAEP source data pointer and length disagree")
	}
	return p, nil
}

// DecodePSSParams reads a CK_RSA_PKCS_PSS_PARAMS blob.
func DecodePSSParams(param []byte) (*PSSParams, error) {
	if len(param) != pssParamsSize {
		return nil, paramInvalid("bad PSS parameter size")
	}
	words := readWords(param)
	return &PSSParams{
		HashAlg:    words[0],
		MGF:        words[1],
		SaltLength: words[2],
	}, nil
}

// EncodeOAEPParams builds the blob DecodeOAEPParams reads. The source data
// is referenced by address, so p must stay alive while the blob is used.
func EncodeOAEPParams(p *pkcs11.OAEPParams) []byte {
	var data uintptr
	if len(p.SourceData) > 0 {
		data = uintptr(unsafe.Pointer(&p.SourceData[0]))
	}
	return writeWords(p.HashAlg, p.MGF, p.SourceType, uint(data), uint(len(p.SourceData)))
}

// EncodePSSParams builds the blob DecodePSSParams reads. It is the layout
// pkcs11.NewPSSParams produces.
func EncodePSSParams(p *PSSParams) []byte {
	return writeWords(p.HashAlg, p.MGF, p.SaltLength)
}

func readWords(param []byte) []uint {
	words := make([]uint, len(param)/ulongSize)
	for i := range words {
		chunk := param[i*ulongSize : (i+1)*ulongSize]
		if ulongSize == 8 {
			words[i] = uint(binary.NativeEndian.Uint64(chunk))
		} else {
			words[i] = uint(binary.NativeEndian.Uint32(chunk))
		}
	}
	return words
}

func writeWords(words ...uint) []byte {
	out := make([]byte, len(words)*ulongSize)
	for i, w := range words {
		chunk := out[i*ulongSize : (i+1)*ulongSize]
		if ulongSize == 8 {
			binary.NativeEndian.PutUint64(chunk, uint64(w))
		} else {
			binary.NativeEndian.PutUint32(chunk, uint32(w))
		}
	}
	return out
}
