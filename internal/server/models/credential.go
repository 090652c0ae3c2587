package models

import "time"

// StorageCredential maps an access-key-id to its owner. The secret is
// stored encrypted and only decrypted inside the SigV4 verifier lookup.
type StorageCredential struct {
	ID                 string
	UserID             string
	AccessKeyID        string
	EncryptedSecretKey []byte
	CreatedAt          time.Time
}

// StorageTier is one row of the read-only tier catalog.
type StorageTier struct {
	Name       string
	QuotaBytes int64
}

// UserQuota is a user's resolved storage allowance: the tier assignment
// plus an optional admin override that wins when present.
type UserQuota struct {
	UserID        string
	TierName      string
	QuotaBytes    int64
	OverrideBytes *int64
}

// EffectiveBytes returns the override when set, the tier quota otherwise.
func (q *UserQuota) EffectiveBytes() int64 {
	if q.OverrideBytes != nil {
		return *q.OverrideBytes
	}
	return q.QuotaBytes
}
