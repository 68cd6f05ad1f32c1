package models

import (
	"time"
)

type Entity struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text"`
	TrustScore int64     `json:"trustScore" gorm:"type:bigint;not null;default:0;check:chk_entity_trust_score,trust_score >= 0"`
	Tier       int16     `json:"tier" gorm:"type:smallint;not null;default:0"`
	IsVerified bool      `json:"isVerified" gorm:"type:boolean;not null;default:false"`
	CDate      time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate      time.Time `json:"mdate" gorm:"autoUpdateTime"`
}
