package types

import "encoding/json"

// UnmarshalJSON rejects any tag outside the defined UserRole set, per the
// wire codec's strict-decoding requirement.
func (r *UserRole) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := UserRole(s)
	if !v.Valid() {
		return errUnknownEnumTag("UserRole", s)
	}
	*r = v
	return nil
}

// UnmarshalJSON rejects any tag outside the defined WalletStatus set.
func (s *WalletStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v := WalletStatus(raw)
	if !v.Valid() {
		return errUnknownEnumTag("WalletStatus", raw)
	}
	*s = v
	return nil
}

// UnmarshalJSON rejects any tag outside the defined KeyType set.
func (k *KeyType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := KeyType(s)
	if !v.Valid() {
		return errUnknownEnumTag("KeyType", s)
	}
	*k = v
	return nil
}

// UnmarshalJSON rejects any tag outside the defined XpubSource set.
func (s *XpubSource) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v := XpubSource(raw)
	if !v.Valid() {
		return errUnknownEnumTag("XpubSource", raw)
	}
	*s = v
	return nil
}

// UnmarshalJSON rejects any tag outside the defined KeyIdentityKind set.
func (k *KeyIdentityKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := KeyIdentityKind(s)
	if !v.Valid() {
		return errUnknownEnumTag("KeyIdentityKind", s)
	}
	*k = v
	return nil
}

type errUnknownEnumTagT struct {
	typeName string
	tag      string
}

func (e errUnknownEnumTagT) Error() string {
	return "unknown " + e.typeName + " tag: " + e.tag
}

func errUnknownEnumTag(typeName, tag string) error {
	return errUnknownEnumTagT{typeName: typeName, tag: tag}
}
