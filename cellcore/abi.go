package cellcore

// Hypercall numbers consumed from the (out of scope) dispatcher, spec §6.
const (
	HypercallCellCreate = iota
	HypercallCellDestroy
	HypercallCellGetState
	HypercallCPUGetState
	HypercallHypervisorGetInfo
	HypercallShutdown
)

// Info selectors for HYPERVISOR_GET_INFO, spec §6.
const (
	InfoMemPoolSize = iota
	InfoMemPoolUsed
	InfoRemapPoolSize
	InfoRemapPoolUsed
	InfoNumCells
)

// errCode maps an ErrKind to the negative integer the ABI returns: -1
// through -7, in ErrKind order. The kinds correspond to the
// -EPERM/-EINVAL/-ENOENT/-EEXIST/-EBUSY/-E2BIG/-ENOMEM failures of the
// original hypervisor/control.c, but the numbers are not those errno values.
func errCode(kind ErrKind) int64 {
	switch kind {
	case ErrPermissionDenied:
		return -1
	case ErrInvalid:
		return -2
	case ErrNotFound:
		return -3
	case ErrExists:
		return -4
	case ErrBusy:
		return -5
	case ErrTooBig:
		return -6
	case ErrOutOfMemory:
		return -7
	}
	return -127
}

// ABIResult converts the (value, error) pair returned by a lifecycle
// operation into the signed ABI return value a hypercall dispatcher would
// hand back to the guest: non-negative on success, a negative error code
// otherwise.
func ABIResult(value int, err error) int64 {
	if err == nil {
		return int64(value)
	}
	if e, ok := err.(*Error); ok {
		return errCode(e.Kind)
	}
	return errCode(ErrInvalid)
}
