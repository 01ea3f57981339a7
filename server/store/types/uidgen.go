package types

import (
	sf "github.com/tinode/snowflake"
)

// UidGenerator assigns ordinals. Snowflake ids are strictly increasing
// for a given worker, which is exactly the ordinal invariant: creation
// order equals numeric order. The raw value is used without obfuscation
// because ordering must survive on the wire (the ordinal is the cursor).
type UidGenerator struct {
	seq *sf.SnowFlake
}

// Init initialises the Uid generator.
func (ug *UidGenerator) Init(workerID uint) error {
	var err error
	if ug.seq == nil {
		ug.seq, err = sf.NewSnowFlake(uint32(workerID))
	}
	return err
}

// Get generates a new unique Uid.
func (ug *UidGenerator) Get() Uid {
	id, err := ug.seq.Next()
	if err != nil {
		return ZeroUid
	}
	return Uid(id)
}
