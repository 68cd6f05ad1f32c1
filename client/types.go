package client

import "github.com/totegamma/trustledger/internal/domain"

// Result types returned by Client.
type (
	Entity      = domain.Entity
	Vouch       = domain.Vouch
	VouchResult = domain.VouchResult
	AuditReport = domain.AuditReport
	Tier        = domain.Tier
)

// RequesterHeader is the header that carries the caller's entity id.
const RequesterHeader = domain.RequesterIdHeader

const (
	TierUnverified = domain.TierUnverified
	TierBronze     = domain.TierBronze
	TierSilver     = domain.TierSilver
	TierGold       = domain.TierGold
)

// Errors an APIError unwraps to. They are the server's own sentinels, so
// errors.Is works the same on both sides of the wire.
var (
	ErrNotFound            = domain.ErrNotFound
	ErrSelfVouch           = domain.ErrSelfVouch
	ErrDuplicateVouch      = domain.ErrDuplicateVouch
	ErrEntityExists        = domain.ErrEntityExists
	ErrUnauthenticated     = domain.ErrUnauthenticated
	ErrInvalidArgument     = domain.ErrInvalidArgument
	ErrTransactionConflict = domain.ErrTransactionConflict
	ErrStorageUnavailable  = domain.ErrStorageUnavailable
)
