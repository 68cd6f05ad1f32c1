package models

import (
	"time"
)

// Vouch rows are append-only. The unique index on the pair is what settles
// concurrent attempts to vouch twice.
type Vouch struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text"`
	VoucherID  string    `json:"voucherID" gorm:"type:text;not null;uniqueIndex:uniq_vouch_pair,priority:1;index:idx_vouch_voucher_cdate,priority:1;check:chk_vouch_not_self,voucher_id <> receiver_id"`
	Voucher    Entity    `json:"-" gorm:"foreignKey:VoucherID;references:ID;constraint:OnDelete:RESTRICT;"`
	ReceiverID string    `json:"receiverID" gorm:"type:text;not null;uniqueIndex:uniq_vouch_pair,priority:2;index:idx_vouch_receiver_cdate,priority:1"`
	Receiver   Entity    `json:"-" gorm:"foreignKey:ReceiverID;references:ID;constraint:OnDelete:RESTRICT;"`
	Weight     int       `json:"weight" gorm:"type:integer;not null;check:chk_vouch_weight,weight >= 1"`
	CDate      time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp();index:idx_vouch_voucher_cdate,priority:2;index:idx_vouch_receiver_cdate,priority:2"`
}
