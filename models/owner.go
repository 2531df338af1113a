package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// Owner is the author reference held by posts and comments. It is either
// Owned by a user id or Orphaned after that user was deleted. An orphaned
// reference never passes an ownership check.
type Owner struct {
	id    uint
	owned bool
}

// Owned returns a reference to the given user. A zero id yields an orphaned reference.
func Owned(userID uint) Owner {
	if userID == 0 {
		return Owner{}
	}
	return Owner{id: userID, owned: true}
}

// Orphaned returns the unknown-author reference.
func Orphaned() Owner {
	return Owner{}
}

// ID returns the owning user id and whether the reference is owned.
func (o Owner) ID() (uint, bool) {
	return o.id, o.owned
}

func (o Owner) IsOrphaned() bool {
	return !o.owned
}

// OwnedBy reports whether userID owns the resource. Anonymous callers (0) never do.
func (o Owner) OwnedBy(userID uint) bool {
	return o.owned && userID != 0 && o.id == userID
}

func (o Owner) String() string {
	if !o.owned {
		return "orphaned"
	}
	return "owned(" + strconv.FormatUint(uint64(o.id), 10) + ")"
}

// Scan implements sql.Scanner; NULL maps to Orphaned.
func (o *Owner) Scan(value any) error {
	var n int64
	switch v := value.(type) {
	case nil:
		*o = Orphaned()
		return nil
	case int64:
		n = v
	case int32:
		n = int64(v)
	case int:
		n = int64(v)
	case uint64:
		n = int64(v)
	case uint:
		n = int64(v)
	case []byte:
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("scan owner: %w", err)
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("scan owner: %w", err)
		}
		n = parsed
	default:
		return fmt.Errorf("scan owner: unsupported type %T", value)
	}
	if n <= 0 {
		*o = Orphaned()
		return nil
	}
	*o = Owned(uint(n))
	return nil
}

// Value implements driver.Valuer; Orphaned is stored as NULL.
func (o Owner) Value() (driver.Value, error) {
	if !o.owned {
		return nil, nil
	}
	return int64(o.id), nil
}

func (Owner) GormDataType() string {
	return "bigint"
}

func (o Owner) MarshalJSON() ([]byte, error) {
	if !o.owned {
		return []byte("null"), nil
	}
	return json.Marshal(o.id)
}

func (o *Owner) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Orphaned()
		return nil
	}
	var id uint
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*o = Owned(id)
	return nil
}
