package bridge

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/objects"
)

var logger = xlog.NewPackageLogger("github.com/niclabs/keychain-bridge", "bridge")

// ErrorToRV returns the code a caller of the module sees for err and logs
// the error once.
func ErrorToRV(err error) pkcs11.Error {
	if err == nil {
		return pkcs11.CKR_OK
	}
	var tcb *objects.TcbError
	if errors.As(err, &tcb) {
		logger.Debugf("[%s] %s [Code %d]", tcb.Who, tcb.Description, int(tcb.Code))
		return tcb.Code
	}
	var rv pkcs11.Error
	if errors.As(err, &rv) {
		logger.Debugf("[%s] %s [Code %d]", "pkcs11", rv.Error(), int(rv))
		return rv
	}
	code := pkcs11.Error(pkcs11.CKR_GENERAL_ERROR)
	logger.Errorf("[General error] %+v [Code %d]", err, int(code))
	return code
}

func newError(who, description string, code pkcs11.Error) error {
	return objects.NewError(who, description, code)
}

// rvError is ErrorToRV as an error, nil for CKR_OK.
func rvError(err error) error {
	if rv := ErrorToRV(err); rv != pkcs11.CKR_OK {
		return rv
	}
	return nil
}

// result records the outcome of a public call and turns err into the code
// the caller sees.
func (m *Module) result(operation string, started time.Time, err error) error {
	m.metrics.RecordOperation(operation, err, started)
	return rvError(err)
}
